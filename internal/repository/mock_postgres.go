package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nadmax/nexdag/internal/notify"
	"github.com/nadmax/nexdag/internal/repository/models"
)

type MockRunRepository struct {
	mu                 sync.Mutex
	SaveRunCalls       []notify.RunInfo
	FinishRunCalls     []notify.RunReport
	LogTransitionCalls []notify.Event
	GetRunCalls        []string
	Runs               map[string]*models.Run
	Transitions        map[string][]models.Transition
	TaskStats          []models.TaskStats
	SaveRunError       error
	FinishRunError     error
	LogTransitionError error
	GetRunError        error
	GetTransitionsErr  error
	GetTaskStatsError  error
	Closed             bool
}

var _ RunRepository = (*MockRunRepository)(nil)

func NewMockRunRepository() *MockRunRepository {
	return &MockRunRepository{
		Runs:        make(map[string]*models.Run),
		Transitions: make(map[string][]models.Transition),
		TaskStats:   make([]models.TaskStats, 0),
	}
}

func (m *MockRunRepository) SaveRun(ctx context.Context, info notify.RunInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveRunCalls = append(m.SaveRunCalls, info)

	if m.SaveRunError != nil {
		return m.SaveRunError
	}

	if _, exists := m.Runs[info.RunID]; !exists {
		m.Runs[info.RunID] = &models.Run{
			RunID:     info.RunID,
			Order:     append([]string(nil), info.Order...),
			TaskCount: len(info.Order),
			StartedAt: info.StartedAt,
		}
	}

	return nil
}

func (m *MockRunRepository) FinishRun(ctx context.Context, report notify.RunReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FinishRunCalls = append(m.FinishRunCalls, report)

	if m.FinishRunError != nil {
		return m.FinishRunError
	}

	if run, exists := m.Runs[report.RunID]; exists {
		finishedAt := report.FinishedAt
		run.Outcome = report.Outcome
		run.Completed = report.Stats.Completed
		run.Failed = report.Stats.Failed
		run.Skipped = report.Stats.Skipped
		run.Unresolved = append([]string(nil), report.Unresolved...)
		run.FinishedAt = &finishedAt
	}

	return nil
}

func (m *MockRunRepository) LogTransition(ctx context.Context, e notify.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LogTransitionCalls = append(m.LogTransitionCalls, e)

	if m.LogTransitionError != nil {
		return m.LogTransitionError
	}

	log := m.Transitions[e.RunID]
	m.Transitions[e.RunID] = append(log, models.Transition{
		ID:           int64(len(log) + 1),
		RunID:        e.RunID,
		TaskID:       e.TaskID,
		Status:       string(e.Status),
		RetryCount:   e.RetryCount,
		SkippedDueTo: e.SkippedDueTo,
		OccurredAt:   e.At,
	})

	return nil
}

func (m *MockRunRepository) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetRunCalls = append(m.GetRunCalls, runID)

	if m.GetRunError != nil {
		return nil, m.GetRunError
	}

	run, exists := m.Runs[runID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	runCopy := *run
	return &runCopy, nil
}

func (m *MockRunRepository) GetRunTransitions(ctx context.Context, runID string) ([]models.Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTransitionsErr != nil {
		return nil, m.GetTransitionsErr
	}

	return append([]models.Transition(nil), m.Transitions[runID]...), nil
}

func (m *MockRunRepository) GetRecentRuns(ctx context.Context, limit int) ([]models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]models.Run, 0, len(m.Runs))
	for _, run := range m.Runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if len(runs) > limit {
		return runs[:limit], nil
	}

	return runs, nil
}

func (m *MockRunRepository) GetTaskStats(ctx context.Context, hours int) ([]models.TaskStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetTaskStatsError != nil {
		return nil, m.GetTaskStatsError
	}

	return m.TaskStats, nil
}

func (m *MockRunRepository) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Closed = true
	return nil
}

func (m *MockRunRepository) TransitionCount(runID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Transitions[runID])
}
