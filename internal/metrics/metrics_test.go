package metrics

import (
	"testing"
	"time"

	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/stats"
	"github.com/nadmax/nexdag/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTransition(t *testing.T) {
	TaskTransitions.Reset()

	for _, status := range task.Statuses {
		t.Run(string(status), func(t *testing.T) {
			RecordTransition(status)

			assert.Equal(t, 1.0, getCounterValue(t, TaskTransitions, string(status)))
		})
	}
}

func TestRecordAttempt(t *testing.T) {
	TaskAttempts.Reset()
	AttemptDuration.Reset()

	RecordAttempt(ResultFailure, 100*time.Millisecond)
	RecordAttempt(ResultFailure, 200*time.Millisecond)
	RecordAttempt(ResultSuccess, time.Second)

	assert.Equal(t, 2.0, getCounterValue(t, TaskAttempts, ResultFailure))
	assert.Equal(t, 1.0, getCounterValue(t, TaskAttempts, ResultSuccess))
	assert.InDelta(t, 0.3, getHistogramSum(t, AttemptDuration, ResultFailure), 0.001)
	assert.InDelta(t, 1.0, getHistogramSum(t, AttemptDuration, ResultSuccess), 0.001)
}

func TestRecordTaskFinished(t *testing.T) {
	TaskDuration.Reset()

	RecordTaskFinished(task.StatusCompleted, 2*time.Second)

	metric := getHistogramMetric(t, TaskDuration, string(task.StatusCompleted))
	assert.Equal(t, uint64(1), metric.Histogram.GetSampleCount())
	assert.InDelta(t, 2.0, metric.Histogram.GetSampleSum(), 0.001)
}

func TestRecordRun(t *testing.T) {
	RunsTotal.Reset()
	RunDuration.Reset()

	RecordRun("resolved", 3*time.Second)
	RecordRun("deadlocked", time.Second)
	RecordRun("resolved", time.Second)

	assert.Equal(t, 2.0, getCounterValue(t, RunsTotal, "resolved"))
	assert.Equal(t, 1.0, getCounterValue(t, RunsTotal, "deadlocked"))
	assert.InDelta(t, 4.0, getHistogramSum(t, RunDuration, "resolved"), 0.001)
}

func TestUpdateTaskGauges(t *testing.T) {
	UpdateTaskGauges(map[task.TaskStatus]int{
		task.StatusCompleted: 4,
		task.StatusFailed:    1,
		task.StatusSkipped:   2,
	})

	assert.Equal(t, 4.0, getGaugeValue(t, TasksByStatus, string(task.StatusCompleted)))
	assert.Equal(t, 1.0, getGaugeValue(t, TasksByStatus, string(task.StatusFailed)))
	assert.Equal(t, 2.0, getGaugeValue(t, TasksByStatus, string(task.StatusSkipped)))
}

func TestUpdateTaskGauges_Reset(t *testing.T) {
	UpdateTaskGauges(map[task.TaskStatus]int{task.StatusRunning: 3})
	UpdateTaskGauges(map[task.TaskStatus]int{task.StatusCompleted: 3})

	assert.Equal(t, 0.0, getGaugeValue(t, TasksByStatus, string(task.StatusRunning)))
	assert.Equal(t, 3.0, getGaugeValue(t, TasksByStatus, string(task.StatusCompleted)))
}

func TestRecordHTTPRequest(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	tests := []struct {
		method   string
		endpoint string
		status   string
		duration time.Duration
	}{
		{"GET", "/api/tasks", "200", 10 * time.Millisecond},
		{"POST", "/api/tasks", "201", 20 * time.Millisecond},
		{"POST", "/api/execute", "409", 5 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.endpoint, func(t *testing.T) {
			RecordHTTPRequest(tt.method, tt.endpoint, tt.status, tt.duration)

			assert.Equal(t, 1.0, getCounterValue(t, HTTPRequestsTotal, tt.method, tt.endpoint, tt.status))
			assert.InDelta(t, tt.duration.Seconds(), getHistogramSum(t, HTTPRequestDuration, tt.method, tt.endpoint), 0.0001)
		})
	}
}

func TestRecorder_RetriedThenCompleted(t *testing.T) {
	TaskTransitions.Reset()
	TaskAttempts.Reset()
	AttemptDuration.Reset()
	TaskDuration.Reset()

	r := NewRecorder()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	r.OnStateChange(notify.Event{TaskID: "A", Status: task.StatusRunning, At: start})
	r.OnStateChange(notify.Event{TaskID: "A", Status: task.StatusRetrying, RetryCount: 1, At: start.Add(time.Second)})
	r.OnStateChange(notify.Event{TaskID: "A", Status: task.StatusCompleted, RetryCount: 1, At: start.Add(3 * time.Second)})

	assert.Equal(t, 1.0, getCounterValue(t, TaskTransitions, string(task.StatusRunning)))
	assert.Equal(t, 1.0, getCounterValue(t, TaskTransitions, string(task.StatusRetrying)))
	assert.Equal(t, 1.0, getCounterValue(t, TaskTransitions, string(task.StatusCompleted)))

	assert.Equal(t, 1.0, getCounterValue(t, TaskAttempts, ResultFailure))
	assert.Equal(t, 1.0, getCounterValue(t, TaskAttempts, ResultSuccess))
	assert.InDelta(t, 1.0, getHistogramSum(t, AttemptDuration, ResultFailure), 0.001)
	assert.InDelta(t, 2.0, getHistogramSum(t, AttemptDuration, ResultSuccess), 0.001)
	assert.InDelta(t, 3.0, getHistogramSum(t, TaskDuration, string(task.StatusCompleted)), 0.001)

	assert.Empty(t, r.taskStart)
	assert.Empty(t, r.attemptStart)
}

func TestRecorder_SkippedHasNoAttempt(t *testing.T) {
	TaskAttempts.Reset()
	TaskTransitions.Reset()

	r := NewRecorder()
	r.OnStateChange(notify.Event{TaskID: "B", Status: task.StatusSkipped, SkippedDueTo: "A", At: time.Now()})

	assert.Equal(t, 1.0, getCounterValue(t, TaskTransitions, string(task.StatusSkipped)))
	assert.Equal(t, 0.0, getCounterValue(t, TaskAttempts, ResultFailure))
	assert.Equal(t, 0.0, getCounterValue(t, TaskAttempts, ResultSuccess))
}

func TestRecorder_RunBoundaries(t *testing.T) {
	RunsTotal.Reset()
	RunDuration.Reset()
	RunsActive.Set(0)

	r := NewRecorder()
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	r.OnRunStarted(notify.RunInfo{RunID: "run-1", StartedAt: start})
	assert.Equal(t, 1.0, getPlainGaugeValue(t, RunsActive))

	r.OnRunFinished(notify.RunReport{
		RunID:      "run-1",
		Outcome:    "resolved",
		Stats:      stats.Stats{Total: 2, Completed: 1, Failed: 1},
		StartedAt:  start,
		FinishedAt: start.Add(5 * time.Second),
	})

	assert.Equal(t, 0.0, getPlainGaugeValue(t, RunsActive))
	assert.Equal(t, 1.0, getCounterValue(t, RunsTotal, "resolved"))
	assert.InDelta(t, 5.0, getHistogramSum(t, RunDuration, "resolved"), 0.001)
	assert.Equal(t, 1.0, getGaugeValue(t, TasksByStatus, string(task.StatusCompleted)))
	assert.Equal(t, 1.0, getGaugeValue(t, TasksByStatus, string(task.StatusFailed)))
}

func TestTaskDurationHistogramBuckets(t *testing.T) {
	TaskDuration.Reset()

	durations := []time.Duration{
		5 * time.Millisecond,
		100 * time.Millisecond,
		time.Second,
		10 * time.Second,
		2 * time.Minute,
	}

	for _, d := range durations {
		RecordTaskFinished(task.StatusFailed, d)
	}

	metric := getHistogramMetric(t, TaskDuration, string(task.StatusFailed))
	assert.Equal(t, uint64(len(durations)), metric.Histogram.GetSampleCount())
}

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := counter.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	c := observer
	err = c.Write(metric)
	require.NoError(t, err)
	return metric.Counter.GetValue()
}

func getGaugeValue(t *testing.T, gauge *prometheus.GaugeVec, labels ...string) float64 {
	metric := &dto.Metric{}
	observer, err := gauge.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	g := observer
	err = g.Write(metric)
	require.NoError(t, err)
	return metric.Gauge.GetValue()
}

func getPlainGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.Gauge.GetValue()
}

func getHistogramSum(t *testing.T, histogram *prometheus.HistogramVec, labels ...string) float64 {
	metric := getHistogramMetric(t, histogram, labels...)
	return metric.Histogram.GetSampleSum()
}

func getHistogramMetric(t *testing.T, histogram *prometheus.HistogramVec, labels ...string) *dto.Metric {
	metric := &dto.Metric{}
	observer, err := histogram.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	h := observer.(prometheus.Histogram)
	err = h.Write(metric)
	require.NoError(t, err)
	return metric
}
