package notify

import (
	"sync"
	"testing"

	"github.com/nadmax/nexdag/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	events   []Event
	started  []RunInfo
	finished []RunReport
}

func (r *recordingObserver) OnStateChange(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingObserver) OnRunStarted(info RunInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, info)
}

func (r *recordingObserver) OnRunFinished(report RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, report)
}

func TestHub_DeliversInSubscriptionOrder(t *testing.T) {
	h := NewHub()
	var calls []string

	h.Subscribe(ListenerFunc(func(e Event) { calls = append(calls, "first:"+e.TaskID) }))
	h.Subscribe(ListenerFunc(func(e Event) { calls = append(calls, "second:"+e.TaskID) }))

	h.OnStateChange(Event{TaskID: "A", Status: task.StatusRunning})
	h.OnStateChange(Event{TaskID: "B", Status: task.StatusRunning})

	assert.Equal(t, []string{"first:A", "second:A", "first:B", "second:B"}, calls)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub()
	count := 0

	unsubscribe := h.Subscribe(ListenerFunc(func(Event) { count++ }))
	h.OnStateChange(Event{TaskID: "A"})

	unsubscribe()
	unsubscribe()
	h.OnStateChange(Event{TaskID: "A"})

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, h.Len())
}

func TestHub_UnsubscribeKeepsOthers(t *testing.T) {
	h := NewHub()
	var got []string

	first := h.Subscribe(ListenerFunc(func(Event) { got = append(got, "first") }))
	h.Subscribe(ListenerFunc(func(Event) { got = append(got, "second") }))
	first()

	h.OnStateChange(Event{})

	assert.Equal(t, []string{"second"}, got)
}

func TestHub_RunObserver(t *testing.T) {
	h := NewHub()
	obs := &recordingObserver{}
	plain := 0

	h.Subscribe(obs)
	h.Subscribe(ListenerFunc(func(Event) { plain++ }))

	h.OnRunStarted(RunInfo{RunID: "run-1", Order: []string{"A"}})
	h.OnStateChange(Event{RunID: "run-1", TaskID: "A", Status: task.StatusCompleted})
	h.OnRunFinished(RunReport{RunID: "run-1", Outcome: "resolved"})

	require.Len(t, obs.started, 1)
	require.Len(t, obs.finished, 1)
	assert.Equal(t, "run-1", obs.started[0].RunID)
	assert.Equal(t, "resolved", obs.finished[0].Outcome)
	assert.Len(t, obs.events, 1)
	assert.Equal(t, 1, plain)
}

func TestChannelListener(t *testing.T) {
	h := NewHub()
	ch := NewChannelListener(4)
	unsubscribe := h.Subscribe(ch)

	h.OnStateChange(Event{TaskID: "A", Status: task.StatusRunning})
	h.OnStateChange(Event{TaskID: "A", Status: task.StatusCompleted})
	unsubscribe()
	ch.Close()

	var got []task.TaskStatus
	for e := range ch.Events() {
		got = append(got, e.Status)
	}

	assert.Equal(t, []task.TaskStatus{task.StatusRunning, task.StatusCompleted}, got)
}

func TestChannelListener_BlocksWhenFull(t *testing.T) {
	ch := NewChannelListener(1)
	ch.OnStateChange(Event{TaskID: "A"})

	done := make(chan struct{})
	go func() {
		ch.OnStateChange(Event{TaskID: "B"})
		close(done)
	}()

	first := <-ch.Events()
	<-done
	second := <-ch.Events()

	assert.Equal(t, "A", first.TaskID)
	assert.Equal(t, "B", second.TaskID)
}
