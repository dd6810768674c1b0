package cli

import (
	"context"
	"errors"
)

// Exit codes returned by the nexdag binary.
const (
	Success = 0

	// Unsuccessful means the run resolved but some task failed or was skipped.
	Unsuccessful = 1

	// InvalidPlan covers unreadable plans, bad definitions, cycles and bad
	// flags.
	InvalidPlan = 2

	// Deadlocked means a pass made no progress while tasks remained.
	Deadlocked = 3

	// Interrupted means the run was cancelled by a signal.
	Interrupted = 130
)

var (
	ErrUnsuccessful = errors.New("run finished with failed or skipped tasks")
	ErrDeadlocked   = errors.New("run deadlocked")
)

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return Success
	case errors.Is(err, context.Canceled):
		return Interrupted
	case errors.Is(err, ErrDeadlocked):
		return Deadlocked
	case errors.Is(err, ErrUnsuccessful):
		return Unsuccessful
	default:
		return InvalidPlan
	}
}
