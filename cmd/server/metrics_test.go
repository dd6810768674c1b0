package main

import (
	"testing"

	"github.com/nadmax/nexdag/internal/engine"
	"github.com/nadmax/nexdag/internal/metrics"
	"github.com/nadmax/nexdag/internal/task"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateTaskMetrics(t *testing.T) {
	eng := engine.New(nil)
	require.NoError(t, eng.AddTask(task.Task{ID: "A", Name: "A", DurationMs: 1}))
	require.NoError(t, eng.AddTask(task.Task{ID: "B", Name: "B", DurationMs: 1, Dependencies: []string{"A"}}))

	updateTaskMetrics(eng)

	metric := &dto.Metric{}
	gauge, err := metrics.TasksByStatus.GetMetricWithLabelValues(string(task.StatusPending))
	require.NoError(t, err)
	require.NoError(t, gauge.Write(metric))
	assert.Equal(t, 2.0, metric.Gauge.GetValue())
}
