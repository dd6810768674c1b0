// Package engine drives registered tasks through their dependency order.
//
// Tasks run one at a time. A failing task is retried up to a fixed bound and
// then recorded as failed; tasks that depend on a failed or skipped task are
// skipped. Every transition is published to the engine's notify.Hub.
package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/registry"
	"github.com/nadmax/nexdag/internal/stats"
	"github.com/nadmax/nexdag/internal/task"
)

const DefaultMaxRetries = 3

// ErrRunInProgress is returned by TryExecute and Start while another run holds
// the engine.
var ErrRunInProgress = errors.New("run already in progress")

type Outcome string

const (
	// OutcomeResolved means every task reached a terminal status.
	OutcomeResolved Outcome = "resolved"
	// OutcomeDeadlocked means a pass made no progress while tasks remained.
	OutcomeDeadlocked Outcome = "deadlocked"
	// OutcomeCancelled means the context was cancelled between two tasks.
	OutcomeCancelled Outcome = "cancelled"
)

// Executor performs one attempt of a task. attempt is zero for the first try.
type Executor interface {
	Attempt(ctx context.Context, t task.Task, attempt int) error
}

type ExecutorFunc func(ctx context.Context, t task.Task, attempt int) error

func (f ExecutorFunc) Attempt(ctx context.Context, t task.Task, attempt int) error {
	return f(ctx, t, attempt)
}

type RunResult struct {
	RunID      string      `json:"run_id"`
	Outcome    Outcome     `json:"outcome"`
	Order      []string    `json:"order"`
	Unresolved []string    `json:"unresolved"`
	Stats      stats.Stats `json:"stats"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

func (r *RunResult) Resolved() bool {
	return r.Outcome == OutcomeResolved
}

type Engine struct {
	registry   *registry.Registry
	executor   Executor
	hub        *notify.Hub
	maxRetries int
	now        func() time.Time

	runMu   sync.Mutex
	running atomic.Bool
}

type Option func(*Engine)

func WithExecutor(ex Executor) Option {
	return func(e *Engine) { e.executor = ex }
}

// WithMaxRetries sets how many retries follow a failed first attempt.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

func WithHub(h *notify.Hub) Option {
	return func(e *Engine) { e.hub = h }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(reg *registry.Registry, opts ...Option) *Engine {
	if reg == nil {
		reg = registry.New()
	}

	e := &Engine{
		registry:   reg,
		maxRetries: DefaultMaxRetries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.executor == nil {
		e.executor = NewSimulatedExecutor(1, 0)
	}
	if e.hub == nil {
		e.hub = notify.NewHub()
	}

	return e
}

func (e *Engine) Registry() *registry.Registry { return e.registry }

func (e *Engine) MaxRetries() int { return e.maxRetries }

// Running reports whether Execute is in progress.
func (e *Engine) Running() bool { return e.running.Load() }

func (e *Engine) Subscribe(l notify.Listener) func() {
	return e.hub.Subscribe(l)
}

// AddTask registers t. It waits for an active run to finish.
func (e *Engine) AddTask(t task.Task) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	return e.registry.Add(t)
}

// AddTasks registers a batch atomically. Prerequisites may point anywhere in
// the batch. It waits for an active run to finish.
func (e *Engine) AddTasks(tasks []task.Task) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	return e.registry.AddAll(tasks)
}

// RemoveTask deletes a task. It waits for an active run to finish.
func (e *Engine) RemoveTask(id string) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	return e.registry.Remove(id)
}

func (e *Engine) Reset() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.registry.Reset()
}

func (e *Engine) ResetRuntime() {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	e.registry.ResetRuntime()
}

func (e *Engine) Order() ([]string, error) {
	return e.registry.Order()
}

func (e *Engine) Stats() stats.Stats {
	return stats.Compute(e.registry)
}

func (e *Engine) Detail(id string) (task.Detail, error) {
	return e.registry.Detail(id)
}

func (e *Engine) Details() []task.Detail {
	return e.registry.Details()
}

// Execute runs every resolvable task. It waits for an active run to finish
// before starting. Only structural errors are returned; task failures are
// recorded as state.
func (e *Engine) Execute(ctx context.Context) (*RunResult, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	return e.execute(ctx)
}

// TryExecute is Execute that fails with ErrRunInProgress instead of waiting.
func (e *Engine) TryExecute(ctx context.Context) (*RunResult, error) {
	if !e.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.runMu.Unlock()

	return e.execute(ctx)
}

// Start begins a run in the background and returns its id. The result is
// delivered on the channel once the run finishes. Like TryExecute it fails
// with ErrRunInProgress instead of waiting, and structural errors are
// returned before anything runs.
func (e *Engine) Start(ctx context.Context) (string, <-chan *RunResult, error) {
	if !e.runMu.TryLock() {
		return "", nil, ErrRunInProgress
	}

	order, err := e.registry.Order()
	if err != nil {
		e.runMu.Unlock()
		return "", nil, err
	}

	runID := uuid.New().String()
	e.running.Store(true)
	done := make(chan *RunResult, 1)

	go func() {
		defer e.runMu.Unlock()
		defer close(done)

		done <- e.run(ctx, runID, order)
	}()

	return runID, done, nil
}

func (e *Engine) execute(ctx context.Context) (*RunResult, error) {
	order, err := e.registry.Order()
	if err != nil {
		return nil, err
	}

	return e.run(ctx, uuid.New().String(), order), nil
}

func (e *Engine) run(ctx context.Context, runID string, order []string) *RunResult {
	e.running.Store(true)
	defer e.running.Store(false)

	result := &RunResult{
		RunID:     runID,
		Outcome:   OutcomeResolved,
		Order:     order,
		StartedAt: e.now(),
	}
	e.hub.OnRunStarted(notify.RunInfo{RunID: result.RunID, Order: order, StartedAt: result.StartedAt})
	log.Printf("Run %s started with %d tasks", result.RunID, len(order))

	working := make([]string, 0, len(order))
	active := make(map[string]struct{}, len(order))
	for _, id := range order {
		if status, ok := e.registry.Status(id); ok && status.IsTerminal() {
			continue
		}
		working = append(working, id)
		active[id] = struct{}{}
	}

	for len(working) > 0 {
		progress := false
		next := make([]string, 0, len(working))

		for i, id := range working {
			if ctx.Err() != nil {
				result.Outcome = OutcomeCancelled
				next = append(next, working[i:]...)
				break
			}

			if e.step(ctx, result.RunID, id) {
				progress = true
				continue
			}
			next = append(next, id)
		}
		working = next

		if result.Outcome == OutcomeCancelled {
			log.Printf("Run %s cancelled with %d tasks unresolved", result.RunID, len(working))
			break
		}
		if !progress {
			result.Outcome = OutcomeDeadlocked
			log.Printf("Run %s stalled with %d tasks unresolved: %v", result.RunID, len(working), working)
			break
		}
	}

	result.Unresolved = working
	result.Stats = stats.Compute(e.registry)
	result.FinishedAt = e.now()

	e.hub.OnRunFinished(e.report(result, active))
	log.Printf("Run %s finished: %s (completed=%d failed=%d skipped=%d)",
		result.RunID, result.Outcome, result.Stats.Completed, result.Stats.Failed, result.Stats.Skipped)

	return result
}

// step resolves id if it can and reports whether it did.
func (e *Engine) step(ctx context.Context, runID, id string) bool {
	t, ok := e.registry.Get(id)
	if !ok {
		return true
	}

	if cause := e.blockingCause(t); cause != "" {
		if err := e.registry.MarkSkipped(id, cause); err != nil {
			log.Printf("Failed to mark task %s skipped: %v", id, err)
			return true
		}
		detail, _ := e.registry.Detail(id)
		e.emit(runID, id, task.StatusSkipped, detail.RetryCount, cause)
		log.Printf("Task %s skipped because %s did not complete", id, cause)
		return true
	}

	status, _ := e.registry.Status(id)
	if status == task.StatusPending && e.dependenciesCompleted(t) {
		e.runTask(ctx, runID, t)
		return true
	}

	return false
}

// blockingCause returns the first prerequisite that ended failed or skipped.
func (e *Engine) blockingCause(t task.Task) string {
	for _, dep := range t.Dependencies {
		status, ok := e.registry.Status(dep)
		if !ok {
			continue
		}
		if status == task.StatusFailed || status == task.StatusSkipped {
			return dep
		}
	}

	return ""
}

func (e *Engine) dependenciesCompleted(t task.Task) bool {
	for _, dep := range t.Dependencies {
		status, ok := e.registry.Status(dep)
		if ok && status != task.StatusCompleted {
			return false
		}
	}

	return true
}

// runTask drives one task through its attempts until it completes or fails.
// The executor never sees the caller's cancellation so an attempt in flight
// always finishes.
func (e *Engine) runTask(ctx context.Context, runID string, t task.Task) {
	attemptCtx := context.WithoutCancel(ctx)

	for attempt := 0; ; {
		status := task.StatusRunning
		if attempt > 0 {
			status = task.StatusRetrying
		}
		e.transition(runID, t.ID, status, attempt)
		log.Printf("Task %s (%s) %s, attempt %d", t.ID, t.Name, status, attempt+1)

		err := e.executor.Attempt(attemptCtx, t, attempt)
		if err == nil {
			e.transition(runID, t.ID, task.StatusCompleted, attempt)
			log.Printf("Task %s completed successfully", t.ID)
			return
		}

		attempt++
		if attempt <= e.maxRetries {
			log.Printf("Task %s failed, will retry (%d/%d): %v", t.ID, attempt, e.maxRetries, err)
			continue
		}

		e.transition(runID, t.ID, task.StatusFailed, attempt)
		log.Printf("Task %s failed permanently: %v", t.ID, err)
		return
	}
}

func (e *Engine) transition(runID, id string, status task.TaskStatus, retryCount int) {
	if err := e.registry.SetStatus(id, status, retryCount); err != nil {
		log.Printf("Failed to update task %s to %s: %v", id, status, err)
		return
	}
	e.emit(runID, id, status, retryCount, "")
}

func (e *Engine) emit(runID, id string, status task.TaskStatus, retryCount int, cause string) {
	e.hub.OnStateChange(notify.Event{
		RunID:        runID,
		TaskID:       id,
		Status:       status,
		RetryCount:   retryCount,
		SkippedDueTo: cause,
		At:           e.now(),
	})
}

// report lists as failed or skipped only the tasks in active, the ones this
// run started out with. Terminal states left by an earlier run are not
// reported again.
func (e *Engine) report(result *RunResult, active map[string]struct{}) notify.RunReport {
	report := notify.RunReport{
		RunID:      result.RunID,
		Outcome:    string(result.Outcome),
		Unresolved: result.Unresolved,
		Stats:      result.Stats,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Details:    e.registry.Details(),
	}

	for _, d := range report.Details {
		if _, ok := active[d.ID]; !ok {
			continue
		}
		switch d.Status {
		case task.StatusFailed:
			report.Failed = append(report.Failed, d.ID)
		case task.StatusSkipped:
			report.Skipped = append(report.Skipped, d.ID)
		}
	}

	return report
}
