// Package task defines the core task domain model used by the registry and the engine.
// It contains task definitions, status values, the merged detail view and serialization helpers.
package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTask = errors.New("invalid task")

type (
	TaskStatus string
	Task       struct {
		ID           string   `json:"id" yaml:"id"`
		Name         string   `json:"name" yaml:"name"`
		DurationMs   int64    `json:"duration_ms" yaml:"duration_ms"`
		FailureRate  float64  `json:"failure_rate" yaml:"failure_rate"`
		Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	}
)

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusRetrying  TaskStatus = "retrying"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
)

// Statuses lists every status in display order.
var Statuses = []TaskStatus{
	StatusPending,
	StatusRunning,
	StatusRetrying,
	StatusCompleted,
	StatusFailed,
	StatusSkipped,
}

func NewTask(name string, durationMs int64, failureRate float64, deps ...string) *Task {
	return &Task{
		ID:           uuid.New().String(),
		Name:         name,
		DurationMs:   durationMs,
		FailureRate:  failureRate,
		Dependencies: deps,
	}
}

// IsTerminal reports whether no transition can leave the status.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Known reports whether s is one of the declared statuses.
func (s TaskStatus) Known() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}

	return false
}

func (t *Task) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// Validate checks the definition on its own. Whether the dependencies exist is
// the registry's concern.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidTask)
	}
	if t.Name == "" {
		return fmt.Errorf("%w: name is required for %s", ErrInvalidTask, t.ID)
	}
	if t.DurationMs <= 0 {
		return fmt.Errorf("%w: duration must be positive for %s", ErrInvalidTask, t.ID)
	}
	if math.IsNaN(t.FailureRate) || t.FailureRate < 0 || t.FailureRate > 1 {
		return fmt.Errorf("%w: failure rate must be within [0,1] for %s", ErrInvalidTask, t.ID)
	}

	seen := make(map[string]struct{}, len(t.Dependencies))
	for _, dep := range t.Dependencies {
		if dep == t.ID {
			return fmt.Errorf("%w: %s depends on itself", ErrInvalidTask, t.ID)
		}
		if _, dup := seen[dep]; dup {
			return fmt.Errorf("%w: %s lists dependency %s twice", ErrInvalidTask, t.ID, dep)
		}
		seen[dep] = struct{}{}
	}

	return nil
}

// Clone returns a copy that shares no slice with t.
func (t Task) Clone() Task {
	if t.Dependencies != nil {
		t.Dependencies = append([]string(nil), t.Dependencies...)
	}

	return t
}

func (t *Task) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func TaskFromJSON(data string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, err
	}

	return &t, nil
}
