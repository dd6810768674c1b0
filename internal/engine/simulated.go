package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/nadmax/nexdag/internal/task"
)

var ErrSimulatedFailure = errors.New("simulated failure")

// SimulatedExecutor waits for the task's duration and then fails with the
// task's failure rate.
type SimulatedExecutor struct {
	mu    sync.Mutex
	rng   *rand.Rand
	scale float64
}

// NewSimulatedExecutor scales every duration by scale. A zero seed picks one
// from the clock.
func NewSimulatedExecutor(scale float64, seed uint64) *SimulatedExecutor {
	if scale < 0 {
		scale = 0
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return &SimulatedExecutor{
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		scale: scale,
	}
}

func (s *SimulatedExecutor) Attempt(ctx context.Context, t task.Task, attempt int) error {
	delay := time.Duration(float64(t.Duration()) * s.scale)
	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll < t.FailureRate {
		return fmt.Errorf("%w: task %s attempt %d", ErrSimulatedFailure, t.ID, attempt+1)
	}

	return nil
}
