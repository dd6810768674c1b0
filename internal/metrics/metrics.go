// Package metrics provides Prometheus metrics for monitoring task execution.
package metrics

import (
	"time"

	"github.com/nadmax/nexdag/internal/task"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TaskTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexdag_task_transitions_total",
			Help: "Total number of task status transitions",
		},
		[]string{"status"},
	)
	TaskAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexdag_task_attempts_total",
			Help: "Total number of task attempts by result",
		},
		[]string{"result"},
	)
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexdag_task_duration_seconds",
			Help:    "Time from first attempt to terminal status, retries included",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)
	AttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexdag_attempt_duration_seconds",
			Help:    "Duration of a single task attempt",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"result"},
	)
	TasksByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexdag_tasks",
			Help: "Current number of registered tasks by status",
		},
		[]string{"status"},
	)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexdag_runs_total",
			Help: "Total number of executions by outcome",
		},
		[]string{"outcome"},
	)
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexdag_run_duration_seconds",
			Help:    "Duration of a whole execution",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 600, 1800},
		},
		[]string{"outcome"},
	)
	RunsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexdag_runs_active",
			Help: "Number of executions in progress",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexdag_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexdag_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTransition(status task.TaskStatus) {
	TaskTransitions.WithLabelValues(string(status)).Inc()
}

func RecordAttempt(result string, duration time.Duration) {
	TaskAttempts.WithLabelValues(result).Inc()
	AttemptDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func RecordTaskFinished(status task.TaskStatus, duration time.Duration) {
	TaskDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

func RecordRun(outcome string, duration time.Duration) {
	RunsTotal.WithLabelValues(outcome).Inc()
	RunDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func UpdateTaskGauges(byStatus map[task.TaskStatus]int) {
	TasksByStatus.Reset()
	for status, count := range byStatus {
		TasksByStatus.WithLabelValues(string(status)).Set(float64(count))
	}
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
