// Package plan loads task definitions from YAML or JSON files and renders
// the execution plan of a registry.
package plan

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nadmax/nexdag/internal/task"
	"gopkg.in/yaml.v3"
)

var ErrEmptyPlan = errors.New("plan has no tasks")

// File is the on-disk form of a plan. JSON documents decode too since JSON
// is valid YAML.
type File struct {
	Tasks []task.Task `yaml:"tasks" json:"tasks"`
}

// Registrar accepts a batch of tasks atomically.
type Registrar interface {
	AddTasks(tasks []task.Task) error
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal plan: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, ErrEmptyPlan
	}

	return &f, nil
}

func Save(f *File, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}

	return nil
}

// Apply registers every task of f. Nothing is registered when any task is
// rejected.
func Apply(r Registrar, f *File) error {
	if err := r.AddTasks(f.Tasks); err != nil {
		return fmt.Errorf("apply plan: %w", err)
	}
	return nil
}
