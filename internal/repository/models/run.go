// Package models contains data structures used by the run repository layer.
package models

import "time"

type Run struct {
	RunID      string     `json:"run_id"`
	Outcome    string     `json:"outcome,omitempty"`
	Order      []string   `json:"order"`
	TaskCount  int        `json:"task_count"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Unresolved []string   `json:"unresolved,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Transition struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	TaskID       string    `json:"task_id"`
	Status       string    `json:"status"`
	RetryCount   int       `json:"retry_count"`
	SkippedDueTo string    `json:"skipped_due_to,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// TaskStats summarizes how often a task ended in a terminal status.
type TaskStats struct {
	TaskID     string  `json:"task_id"`
	Status     string  `json:"status"`
	Count      int     `json:"count"`
	AvgRetries float64 `json:"avg_retries"`
}
