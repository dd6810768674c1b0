package main

import (
	"context"
	"time"

	"github.com/nadmax/nexdag/internal/engine"
	"github.com/nadmax/nexdag/internal/metrics"
)

const metricsInterval = 10 * time.Second

// startMetricsCollector refreshes the per-status gauges so structural changes
// made between runs show up too.
func startMetricsCollector(ctx context.Context, eng *engine.Engine) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateTaskMetrics(eng)
		}
	}
}

func updateTaskMetrics(eng *engine.Engine) {
	metrics.UpdateTaskGauges(eng.Stats().ByStatus())
}
