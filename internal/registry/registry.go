// Package registry owns task definitions and their runtime state.
//
// The registry enforces the structural invariants on insertion and removal and
// keeps a cached execution order that is recomputed after every structural change.
package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nadmax/nexdag/internal/graph"
	"github.com/nadmax/nexdag/internal/task"
)

var (
	ErrDuplicateTask     = fmt.Errorf("%w: duplicate id", task.ErrInvalidTask)
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrTaskNotFound      = errors.New("task not found")
	// ErrTaskHasDependents refuses removal of a task another task requires.
	ErrTaskHasDependents = errors.New("task has dependents")
)

type runtimeState struct {
	status       task.TaskStatus
	retryCount   int
	skippedDueTo string
}

type Registry struct {
	mu     sync.RWMutex
	ids    []string
	tasks  map[string]task.Task
	states map[string]*runtimeState

	order      []string
	orderErr   error
	orderValid bool
}

func New() *Registry {
	return &Registry{
		tasks:  make(map[string]task.Task),
		states: make(map[string]*runtimeState),
	}
}

// Add registers t as pending. Every dependency must already be registered.
func (r *Registry) Add(t task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	for _, dep := range t.Dependencies {
		if _, exists := r.tasks[dep]; !exists {
			return fmt.Errorf("%w: task %s does not exist", ErrUnknownDependency, dep)
		}
	}

	r.tasks[t.ID] = t.Clone()
	r.states[t.ID] = &runtimeState{status: task.StatusPending}
	r.ids = append(r.ids, t.ID)
	r.orderValid = false

	return nil
}

// AddAll registers a batch atomically. Dependencies may point at tasks already
// registered or anywhere in the batch, so a batch can introduce a cycle; the
// cycle surfaces from Order. Nothing is registered when any task is rejected.
func (r *Registry) AddAll(tasks []task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return err
		}
		if _, exists := r.tasks[t.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		if _, exists := batch[t.ID]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		batch[t.ID] = struct{}{}
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			_, registered := r.tasks[dep]
			_, inBatch := batch[dep]
			if !registered && !inBatch {
				return fmt.Errorf("%w: task %s does not exist", ErrUnknownDependency, dep)
			}
		}
	}

	for _, t := range tasks {
		r.tasks[t.ID] = t.Clone()
		r.states[t.ID] = &runtimeState{status: task.StatusPending}
		r.ids = append(r.ids, t.ID)
	}
	r.orderValid = false

	return nil
}

// Remove deletes a task and its runtime state. A task that another task
// depends on cannot be removed until its dependents are gone.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	for _, other := range r.ids {
		for _, dep := range r.tasks[other].Dependencies {
			if dep == id {
				return fmt.Errorf("%w: %s is required by %s", ErrTaskHasDependents, id, other)
			}
		}
	}

	delete(r.tasks, id)
	delete(r.states, id)
	for i, existing := range r.ids {
		if existing == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
	r.orderValid = false

	return nil
}

// Reset drops every task and all runtime state.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids = nil
	r.tasks = make(map[string]task.Task)
	r.states = make(map[string]*runtimeState)
	r.order = nil
	r.orderErr = nil
	r.orderValid = false
}

// ResetRuntime puts every registered task back to pending so the same
// definitions can be executed again.
func (r *Registry) ResetRuntime() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.ids {
		r.states[id] = &runtimeState{status: task.StatusPending}
	}
}

// Order returns the execution order, computing it only when the set of tasks
// changed since the last call.
func (r *Registry) Order() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.orderValid {
		r.order, r.orderErr = graph.TopologicalOrder(r.nodesLocked())
		r.orderValid = true
	}
	if r.orderErr != nil {
		return nil, r.orderErr
	}

	return append([]string(nil), r.order...), nil
}

// Nodes returns the dependency graph snapshot in registration order.
func (r *Registry) Nodes() []graph.Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.nodesLocked()
}

func (r *Registry) nodesLocked() []graph.Node {
	nodes := make([]graph.Node, 0, len(r.ids))
	for _, id := range r.ids {
		nodes = append(nodes, graph.Node{ID: id, Dependencies: r.tasks[id].Dependencies})
	}

	return nodes
}

func (r *Registry) Get(id string) (task.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return task.Task{}, false
	}

	return t.Clone(), true
}

func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tasks[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.ids)
}

// IDs returns the registered ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.ids...)
}

// Status returns the current status, or false when id is not registered.
func (r *Registry) Status(id string) (task.TaskStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.states[id]
	if !ok {
		return "", false
	}

	return s.status, true
}

// Statuses returns the current status of every registered task.
func (r *Registry) Statuses() map[string]task.TaskStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]task.TaskStatus, len(r.ids))
	for _, id := range r.ids {
		if s, ok := r.states[id]; ok {
			out[id] = s.status
		} else {
			out[id] = ""
		}
	}

	return out
}

func (r *Registry) Detail(id string) (task.Detail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tasks[id]; !ok {
		return task.Detail{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	return r.detailLocked(id), nil
}

// Details returns every task detail in registration order.
func (r *Registry) Details() []task.Detail {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]task.Detail, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.detailLocked(id))
	}

	return out
}

func (r *Registry) detailLocked(id string) task.Detail {
	d := task.Detail{Task: r.tasks[id].Clone(), Status: task.StatusPending}

	if s, ok := r.states[id]; ok {
		d.Status = s.status
		d.RetryCount = s.retryCount
		d.SkippedDueTo = s.skippedDueTo
	}
	if d.SkippedDueTo != "" {
		d.SkipRootCause = r.rootCauseLocked(id)
	}

	return d
}

// rootCauseLocked follows skip causes until it reaches a task that was not skipped.
func (r *Registry) rootCauseLocked(id string) string {
	visited := make(map[string]struct{})
	cause := id

	for {
		s, ok := r.states[cause]
		if !ok || s.skippedDueTo == "" {
			return cause
		}
		if _, seen := visited[cause]; seen {
			return cause
		}
		visited[cause] = struct{}{}
		cause = s.skippedDueTo
	}
}

// SetStatus records a transition that is not a skip. The skip cause is cleared.
func (r *Registry) SetStatus(id string, status task.TaskStatus, retryCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	s.status = status
	s.retryCount = retryCount
	s.skippedDueTo = ""

	return nil
}

// MarkSkipped records that id was skipped because cause did not complete.
func (r *Registry) MarkSkipped(id, cause string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	s.status = task.StatusSkipped
	s.skippedDueTo = cause

	return nil
}
