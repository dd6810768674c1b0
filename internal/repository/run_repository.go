// Package repository persists run history: one row per run and one row per
// task transition.
package repository

import (
	"context"
	"errors"

	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/repository/models"
)

var ErrRunNotFound = errors.New("run not found")

type RunRepository interface {
	SaveRun(ctx context.Context, info notify.RunInfo) error
	FinishRun(ctx context.Context, report notify.RunReport) error
	LogTransition(ctx context.Context, e notify.Event) error
	GetRun(ctx context.Context, runID string) (*models.Run, error)
	GetRunTransitions(ctx context.Context, runID string) ([]models.Transition, error)
	GetRecentRuns(ctx context.Context, limit int) ([]models.Run, error)
	GetTaskStats(ctx context.Context, hours int) ([]models.TaskStats, error)
	Close() error
}
