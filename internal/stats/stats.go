// Package stats derives the count-by-status summary of the registered tasks.
package stats

import "github.com/nadmax/nexdag/internal/task"

// Source exposes the live status of every registered task.
type Source interface {
	Statuses() map[string]task.TaskStatus
}

type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retrying  int `json:"retrying"`
	Skipped   int `json:"skipped"`
}

// Compute buckets every task by status. Unknown statuses count as pending so
// the buckets always sum to Total.
func Compute(src Source) Stats {
	statuses := src.Statuses()
	s := Stats{Total: len(statuses)}

	for _, status := range statuses {
		switch status {
		case task.StatusRunning:
			s.Running++
		case task.StatusCompleted:
			s.Completed++
		case task.StatusFailed:
			s.Failed++
		case task.StatusRetrying:
			s.Retrying++
		case task.StatusSkipped:
			s.Skipped++
		default:
			s.Pending++
		}
	}

	return s
}

// ByStatus returns the counts keyed by status.
func (s Stats) ByStatus() map[task.TaskStatus]int {
	return map[task.TaskStatus]int{
		task.StatusPending:   s.Pending,
		task.StatusRunning:   s.Running,
		task.StatusRetrying:  s.Retrying,
		task.StatusCompleted: s.Completed,
		task.StatusFailed:    s.Failed,
		task.StatusSkipped:   s.Skipped,
	}
}

// Unsuccessful is the number of tasks that ended failed or skipped.
func (s Stats) Unsuccessful() int {
	return s.Failed + s.Skipped
}
