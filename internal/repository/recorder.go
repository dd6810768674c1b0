package repository

import (
	"context"
	"log"
	"time"

	"github.com/nadmax/nexdag/internal/notify"
)

const DefaultWriteTimeout = 5 * time.Second

// HistoryRecorder writes run boundaries and transitions to a RunRepository.
// Write failures are logged and never reach the engine.
type HistoryRecorder struct {
	repo    RunRepository
	timeout time.Duration
}

func NewHistoryRecorder(repo RunRepository) *HistoryRecorder {
	return &HistoryRecorder{repo: repo, timeout: DefaultWriteTimeout}
}

func (h *HistoryRecorder) OnRunStarted(info notify.RunInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.repo.SaveRun(ctx, info); err != nil {
		log.Printf("Failed to save run %s to PostgreSQL: %v", info.RunID, err)
	}
}

func (h *HistoryRecorder) OnStateChange(e notify.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.repo.LogTransition(ctx, e); err != nil {
		log.Printf("Failed to log transition of task %s to PostgreSQL: %v", e.TaskID, err)
	}
}

func (h *HistoryRecorder) OnRunFinished(report notify.RunReport) {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.repo.FinishRun(ctx, report); err != nil {
		log.Printf("Failed to finish run %s in PostgreSQL: %v", report.RunID, err)
	}
}
