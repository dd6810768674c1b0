// Package api exposes the engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/nadmax/nexdag/internal/dashboard"
	"github.com/nadmax/nexdag/internal/engine"
	"github.com/nadmax/nexdag/internal/graph"
	"github.com/nadmax/nexdag/internal/httputil"
	"github.com/nadmax/nexdag/internal/registry"
	"github.com/nadmax/nexdag/internal/repository"
	"github.com/nadmax/nexdag/internal/repository/models"
	"github.com/nadmax/nexdag/internal/statestore"
	"github.com/nadmax/nexdag/internal/task"
)

const defaultEventLimit = 100

type API struct {
	engine  *engine.Engine
	store   *statestore.Store
	mirror  *statestore.Mirror
	repo    repository.RunRepository
	baseCtx context.Context
	mux     *http.ServeMux
}

type Option func(*API)

// WithStateStore enables /api/events and keeps the mirror in sync after
// structural changes.
func WithStateStore(store *statestore.Store, mirror *statestore.Mirror) Option {
	return func(a *API) {
		a.store = store
		a.mirror = mirror
	}
}

// WithRunRepository enables /api/history and /api/dashboard/history.
func WithRunRepository(repo repository.RunRepository) Option {
	return func(a *API) { a.repo = repo }
}

// WithBaseContext sets the context background runs are derived from.
func WithBaseContext(ctx context.Context) Option {
	return func(a *API) { a.baseCtx = ctx }
}

type AcceptedRun struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type RunHistory struct {
	Run         *models.Run         `json:"run"`
	Transitions []models.Transition `json:"transitions"`
}

func NewAPI(eng *engine.Engine, opts ...Option) *API {
	api := &API{
		engine:  eng,
		baseCtx: context.Background(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(api)
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/tasks", a.handleTasks)
	a.mux.HandleFunc("/api/tasks/", a.handleTaskByID)
	a.mux.HandleFunc("/api/order", a.handleOrder)
	a.mux.HandleFunc("/api/execute", a.handleExecute)
	a.mux.HandleFunc("/api/reset", a.handleReset)
	a.mux.HandleFunc("/api/restart", a.handleRestart)
	a.mux.HandleFunc("/api/history/", a.handleRunHistory)
	a.mux.HandleFunc("/api/events", a.handleEvents)
	a.mux.HandleFunc("/health", a.handleHealth)

	dash := dashboard.NewDashboard(a.engine, a.repo)
	a.mux.HandleFunc("/api/dashboard/stats", dash.GetStats)
	a.mux.HandleFunc("/api/dashboard/plan", dash.GetPlan)
	a.mux.HandleFunc("/api/dashboard/history", dash.GetRecentRuns)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

// Handle mounts an extra handler, such as /metrics, on the API mux.
func (a *API) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTask(w, r)
	case http.MethodGet:
		a.listTasks(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	var t task.Task
	if err := json.Unmarshal(body, &t); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}

	if err := a.engine.AddTask(t); err != nil {
		writeEngineError(w, err)
		return
	}
	a.syncMirror()

	detail, err := a.engine.Detail(t.ID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSON(w, detail, http.StatusCreated)
}

func (a *API) listTasks(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, a.engine.Details(), http.StatusOK)
}

func (a *API) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	if taskID == "" {
		httputil.WriteJSONError(w, "Task ID is required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		detail, err := a.engine.Detail(taskID)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		httputil.WriteJSON(w, detail, http.StatusOK)
	case http.MethodDelete:
		if err := a.engine.RemoveTask(taskID); err != nil {
			writeEngineError(w, err)
			return
		}
		a.syncMirror()
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	order, err := a.engine.Order()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSON(w, map[string][]string{"order": order}, http.StatusOK)
}

func (a *API) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		a.startRun(w)
		return
	}

	result, err := a.engine.TryExecute(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	httputil.WriteJSON(w, result, http.StatusOK)
}

func (a *API) startRun(w http.ResponseWriter) {
	runID, done, err := a.engine.Start(a.baseCtx)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	go func() {
		result := <-done
		log.Printf("Background run %s finished: %s", result.RunID, result.Outcome)
	}()

	httputil.WriteJSON(w, AcceptedRun{RunID: runID, Status: "accepted"}, http.StatusAccepted)
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.engine.Reset()
	a.syncMirror()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	a.engine.ResetRuntime()
	a.syncMirror()
	httputil.WriteJSON(w, a.engine.Stats(), http.StatusOK)
}

func (a *API) handleRunHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if a.repo == nil {
		httputil.WriteJSONError(w, "Run history is disabled", http.StatusNotFound)
		return
	}

	runID := strings.TrimPrefix(r.URL.Path, "/api/history/")
	if runID == "" {
		httputil.WriteJSONError(w, "Run ID is required", http.StatusBadRequest)
		return
	}

	run, err := a.repo.GetRun(r.Context(), runID)
	if errors.Is(err, repository.ErrRunNotFound) {
		httputil.WriteJSONError(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	transitions, err := a.repo.GetRunTransitions(r.Context(), runID)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if transitions == nil {
		transitions = []models.Transition{}
	}

	httputil.WriteJSON(w, RunHistory{Run: run, Transitions: transitions}, http.StatusOK)
}

func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if a.store == nil {
		httputil.WriteJSONError(w, "Event mirror is disabled", http.StatusNotFound)
		return
	}

	if stream, _ := strconv.ParseBool(r.URL.Query().Get("stream")); stream {
		a.streamEvents(w, r)
		return
	}

	limit := int64(defaultEventLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			httputil.WriteJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := a.store.RecentEvents(limit)
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, events, http.StatusOK)
}

// streamEvents relays live events as server-sent events until the client
// goes away.
func (a *API) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteJSONError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for e := range a.store.Subscribe(r.Context()) {
		data, err := json.Marshal(e)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Status, data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, map[string]any{
		"status":  "ok",
		"running": a.engine.Running(),
	}, http.StatusOK)
}

func (a *API) syncMirror() {
	if a.mirror == nil {
		return
	}
	if err := a.mirror.Sync(a.engine.Details()); err != nil {
		log.Printf("Failed to sync state mirror: %v", err)
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	httputil.WriteJSONError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrDuplicateTask),
		errors.Is(err, registry.ErrUnknownDependency),
		errors.Is(err, registry.ErrTaskHasDependents),
		errors.Is(err, graph.ErrCycleDetected),
		errors.Is(err, engine.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, task.ErrInvalidTask):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrTaskNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
