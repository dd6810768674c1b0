// Package dashboard implements the monitoring endpoints for run progress and the execution plan.
package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nadmax/nexdag/internal/graph"
	"github.com/nadmax/nexdag/internal/httputil"
	"github.com/nadmax/nexdag/internal/plan"
	"github.com/nadmax/nexdag/internal/repository"
	"github.com/nadmax/nexdag/internal/repository/models"
	"github.com/nadmax/nexdag/internal/stats"
	"github.com/nadmax/nexdag/internal/task"
)

const defaultHistoryLimit = 20

// Source is the read side of the engine the dashboard reports on.
type Source interface {
	Stats() stats.Stats
	Order() ([]string, error)
	Details() []task.Detail
	Running() bool
}

type Dashboard struct {
	source Source
	repo   repository.RunRepository
}

type Stats struct {
	stats.Stats
	Running     bool      `json:"running"`
	LastUpdated time.Time `json:"last_updated"`
}

type Plan struct {
	Order []string   `json:"order"`
	Tasks []plan.Row `json:"tasks"`
}

// NewDashboard serves source. repo may be nil when run history is disabled.
func NewDashboard(source Source, repo repository.RunRepository) *Dashboard {
	return &Dashboard{source: source, repo: repo}
}

func (d *Dashboard) GetStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, Stats{
		Stats:       d.source.Stats(),
		Running:     d.source.Running(),
		LastUpdated: time.Now(),
	}, http.StatusOK)
}

func (d *Dashboard) GetPlan(w http.ResponseWriter, r *http.Request) {
	order, err := d.source.Order()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, graph.ErrCycleDetected) {
			status = http.StatusConflict
		}
		httputil.WriteJSONError(w, err.Error(), status)
		return
	}

	httputil.WriteJSON(w, Plan{
		Order: order,
		Tasks: plan.Rows(order, d.source.Details()),
	}, http.StatusOK)
}

func (d *Dashboard) GetRecentRuns(w http.ResponseWriter, r *http.Request) {
	if d.repo == nil {
		httputil.WriteJSONError(w, "Run history is disabled", http.StatusNotFound)
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.WriteJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := d.repo.GetRecentRuns(r.Context(), limit)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}

	httputil.WriteJSON(w, runs, http.StatusOK)
}
