package metrics

import (
	"sync"
	"time"

	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/task"
)

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder turns engine events into metric updates.
type Recorder struct {
	mu           sync.Mutex
	taskStart    map[string]time.Time
	attemptStart map[string]time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{
		taskStart:    make(map[string]time.Time),
		attemptStart: make(map[string]time.Time),
	}
}

func (r *Recorder) OnStateChange(e notify.Event) {
	RecordTransition(e.Status)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Status {
	case task.StatusRunning:
		r.taskStart[e.TaskID] = e.At
		r.attemptStart[e.TaskID] = e.At
	case task.StatusRetrying:
		r.finishAttempt(e, ResultFailure)
		r.attemptStart[e.TaskID] = e.At
	case task.StatusCompleted:
		r.finishAttempt(e, ResultSuccess)
		r.finishTask(e)
	case task.StatusFailed:
		r.finishAttempt(e, ResultFailure)
		r.finishTask(e)
	}
}

func (r *Recorder) finishAttempt(e notify.Event, result string) {
	if start, ok := r.attemptStart[e.TaskID]; ok {
		RecordAttempt(result, e.At.Sub(start))
	}
}

func (r *Recorder) finishTask(e notify.Event) {
	if start, ok := r.taskStart[e.TaskID]; ok {
		RecordTaskFinished(e.Status, e.At.Sub(start))
	}
	delete(r.taskStart, e.TaskID)
	delete(r.attemptStart, e.TaskID)
}

func (r *Recorder) OnRunStarted(notify.RunInfo) {
	RunsActive.Inc()
}

func (r *Recorder) OnRunFinished(report notify.RunReport) {
	RunsActive.Dec()
	RecordRun(report.Outcome, report.Duration())
	UpdateTaskGauges(report.Stats.ByStatus())
}
