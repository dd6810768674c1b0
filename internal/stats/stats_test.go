package stats

import (
	"testing"

	"github.com/nadmax/nexdag/internal/registry"
	"github.com/nadmax/nexdag/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource map[string]task.TaskStatus

func (s staticSource) Statuses() map[string]task.TaskStatus { return s }

func TestCompute_Empty(t *testing.T) {
	s := Compute(staticSource{})

	assert.Equal(t, Stats{}, s)
}

func TestCompute(t *testing.T) {
	s := Compute(staticSource{
		"a": task.StatusPending,
		"b": task.StatusRunning,
		"c": task.StatusCompleted,
		"d": task.StatusCompleted,
		"e": task.StatusFailed,
		"f": task.StatusRetrying,
		"g": task.StatusSkipped,
	})

	assert.Equal(t, Stats{
		Total:     7,
		Pending:   1,
		Running:   1,
		Completed: 2,
		Failed:    1,
		Retrying:  1,
		Skipped:   1,
	}, s)
	assert.Equal(t, 2, s.Unsuccessful())
}

func TestCompute_UnknownStatusCountsAsPending(t *testing.T) {
	s := Compute(staticSource{
		"a": "",
		"b": "dead_letter",
		"c": task.StatusCompleted,
	})

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Pending)
	assert.Equal(t, 1, s.Completed)
}

func TestCompute_SumsToTotal(t *testing.T) {
	src := staticSource{}
	for i, status := range append(append([]task.TaskStatus{}, task.Statuses...), "bogus") {
		src[string(rune('a'+i))] = status
	}

	s := Compute(src)

	sum := 0
	for _, count := range s.ByStatus() {
		sum += count
	}
	assert.Equal(t, s.Total, sum)
}

func TestCompute_LiveRegistry(t *testing.T) {
	r := registry.New()
	require.NoError(t, r.Add(task.Task{ID: "A", Name: "A", DurationMs: 1}))
	require.NoError(t, r.Add(task.Task{ID: "B", Name: "B", DurationMs: 1, Dependencies: []string{"A"}}))

	assert.Equal(t, Stats{Total: 2, Pending: 2}, Compute(r))

	require.NoError(t, r.SetStatus("A", task.StatusCompleted, 0))
	require.NoError(t, r.SetStatus("B", task.StatusCompleted, 0))

	assert.Equal(t, Stats{Total: 2, Completed: 2}, Compute(r))

	require.NoError(t, r.Remove("B"))
	assert.Equal(t, Stats{Total: 1, Completed: 1}, Compute(r))
}
