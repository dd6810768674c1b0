// Package notify carries state transitions from the engine to its observers.
//
// Every transition produces exactly one Event. Events are delivered
// synchronously on the engine goroutine, in transition order, before the
// engine moves on to the next task.
package notify

import (
	"sync"
	"time"

	"github.com/nadmax/nexdag/internal/stats"
	"github.com/nadmax/nexdag/internal/task"
)

type Event struct {
	RunID        string          `json:"run_id"`
	TaskID       string          `json:"task_id"`
	Status       task.TaskStatus `json:"status"`
	RetryCount   int             `json:"retry_count"`
	SkippedDueTo string          `json:"skipped_due_to,omitempty"`
	At           time.Time       `json:"at"`
}

type Listener interface {
	OnStateChange(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnStateChange(e Event) { f(e) }

type RunInfo struct {
	RunID     string    `json:"run_id"`
	Order     []string  `json:"order"`
	StartedAt time.Time `json:"started_at"`
}

type RunReport struct {
	RunID      string        `json:"run_id"`
	Outcome    string        `json:"outcome"`
	Unresolved []string      `json:"unresolved,omitempty"`
	Failed     []string      `json:"failed,omitempty"`
	Skipped    []string      `json:"skipped,omitempty"`
	Stats      stats.Stats   `json:"stats"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Details    []task.Detail `json:"-"`
}

func (r RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunObserver is implemented by listeners that also want run boundaries.
type RunObserver interface {
	OnRunStarted(RunInfo)
	OnRunFinished(RunReport)
}

type subscription struct {
	id       int
	listener Listener
}

// Hub fans events out to its subscribers in subscription order.
type Hub struct {
	mu     sync.RWMutex
	nextID int
	subs   []subscription
}

func NewHub() *Hub {
	return &Hub{}
}

// Subscribe adds l and returns a function that removes it again.
func (h *Hub) Subscribe(l Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscription{id: id, listener: l})

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(id) })
	}
}

func (h *Hub) unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, s := range h.subs {
		if s.id == id {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs)
}

func (h *Hub) snapshot() []subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]subscription(nil), h.subs...)
}

func (h *Hub) OnStateChange(e Event) {
	for _, s := range h.snapshot() {
		s.listener.OnStateChange(e)
	}
}

func (h *Hub) OnRunStarted(info RunInfo) {
	for _, s := range h.snapshot() {
		if obs, ok := s.listener.(RunObserver); ok {
			obs.OnRunStarted(info)
		}
	}
}

func (h *Hub) OnRunFinished(report RunReport) {
	for _, s := range h.snapshot() {
		if obs, ok := s.listener.(RunObserver); ok {
			obs.OnRunFinished(report)
		}
	}
}

// ChannelListener forwards events into a bounded channel. A full channel
// blocks the engine until the consumer catches up, so no event is dropped.
type ChannelListener struct {
	events chan Event
}

func NewChannelListener(size int) *ChannelListener {
	return &ChannelListener{events: make(chan Event, size)}
}

func (c *ChannelListener) Events() <-chan Event {
	return c.events
}

func (c *ChannelListener) OnStateChange(e Event) {
	c.events <- e
}

// Close closes the channel. Unsubscribe before closing.
func (c *ChannelListener) Close() {
	close(c.events)
}
