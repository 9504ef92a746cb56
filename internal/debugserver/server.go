// Package debugserver exposes a running scheduler over HTTP: Prometheus
// metrics plus JSON views of its stats, tasks and resume history.
package debugserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Swind/go-fiber-runner/core"
	"github.com/Swind/go-fiber-runner/internal/historystore"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Inspector is the read-only scheduler surface served by the debug routes.
// Its methods must be safe to call from HTTP goroutines.
type Inspector interface {
	Stats() core.SchedulerStats
	Tasks() []core.TaskInfo
	History(limit int) []core.ResumeRecord
}

// HistoryReader reads persisted resume history.
type HistoryReader interface {
	Recent(ctx context.Context, runID string, limit int) ([]historystore.Resume, error)
}

// Server serves the debug surface.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	inspector Inspector
	gatherer  prometheus.Gatherer
	history   HistoryReader
	runID     string
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStoredHistory serves /debug/history/stored from h, scoped to runID.
func WithStoredHistory(h HistoryReader, runID string) Option {
	return func(s *Server) {
		s.history = h
		s.runID = runID
	}
}

// New creates a Server with all routes registered.
func New(inspector Inspector, gatherer prometheus.Gatherer, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "debugserver"),
		inspector: inspector,
		gatherer:  gatherer,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(s.logger))

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/debug", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/tasks", s.handleTasks)
		r.Get("/tasks/{handle}", s.handleTask)
		r.Get("/history", s.handleHistory)
		r.Get("/history/stored", s.handleStoredHistory)
	})
}

type statsView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Capacity   int       `json:"capacity"`
	Slots      int       `json:"slots"`
	Active     int       `json:"active"`
	Waiting    int       `json:"waiting"`
	Terminated int       `json:"terminated"`
	Rejected   int64     `json:"rejected"`
	Ticks      uint64    `json:"ticks"`
	Current    int       `json:"current"`
	LastTickAt time.Time `json:"last_tick_at,omitzero"`
	TornDown   bool      `json:"torn_down"`
	Uptime     string    `json:"uptime"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.inspector.Stats()
	respondJSON(w, http.StatusOK, statsView{
		ID:         st.ID,
		Name:       st.Name,
		Capacity:   st.Capacity,
		Slots:      st.Slots,
		Active:     st.Active,
		Waiting:    st.Waiting,
		Terminated: st.Terminated,
		Rejected:   st.Rejected,
		Ticks:      st.Ticks,
		Current:    int(st.Current),
		LastTickAt: st.LastTickAt,
		TornDown:   st.TornDown,
		Uptime:     time.Since(s.startTime).Round(time.Millisecond).String(),
	})
}

type taskView struct {
	Handle           int       `json:"handle"`
	Name             string    `json:"name"`
	State            string    `json:"state"`
	RemainingDelayMS int64     `json:"remaining_delay_ms"`
	StackHint        uint32    `json:"stack_hint"`
	Resumes          uint64    `json:"resumes"`
	CreatedAt        time.Time `json:"created_at"`
	LastResumeAt     time.Time `json:"last_resume_at,omitzero"`
	ExitReason       string    `json:"exit_reason,omitempty"`
}

func toTaskView(info core.TaskInfo) taskView {
	return taskView{
		Handle:           int(info.Handle),
		Name:             info.Name,
		State:            info.State.String(),
		RemainingDelayMS: info.RemainingDelayMS,
		StackHint:        info.StackHint,
		Resumes:          info.Resumes,
		CreatedAt:        info.CreatedAt,
		LastResumeAt:     info.LastResumeAt,
		ExitReason:       info.ExitReason,
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.inspector.Tasks()
	out := make([]taskView, 0, len(tasks))
	for _, info := range tasks {
		out = append(out, toTaskView(info))
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "handle"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "handle must be an integer")
		return
	}
	for _, info := range s.inspector.Tasks() {
		if int(info.Handle) == n {
			respondJSON(w, http.StatusOK, toTaskView(info))
			return
		}
	}
	respondError(w, http.StatusNotFound, "no such task")
}

type resumeView struct {
	Tick       uint64    `json:"tick"`
	Handle     int       `json:"handle"`
	Task       string    `json:"task"`
	First      bool      `json:"first"`
	Outcome    string    `json:"outcome"`
	ExitReason string    `json:"exit_reason,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationNS int64     `json:"duration_ns"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	records := s.inspector.History(limit)
	out := make([]resumeView, 0, len(records))
	for _, rec := range records {
		out = append(out, resumeView{
			Tick:       rec.Tick,
			Handle:     int(rec.Handle),
			Task:       rec.Name,
			First:      rec.First,
			Outcome:    rec.Outcome.String(),
			ExitReason: rec.ExitReason,
			StartedAt:  rec.StartedAt,
			DurationNS: rec.Duration.Nanoseconds(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleStoredHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotFound, "history store not configured")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.history.Recent(r.Context(), s.runID, limit)
	if err != nil {
		s.logger.Error("read stored history", "error", err)
		respondError(w, http.StatusInternalServerError, "read history failed")
		return
	}
	out := make([]resumeView, 0, len(rows))
	for _, row := range rows {
		out = append(out, resumeView{
			Tick:       row.Tick,
			Handle:     row.Handle,
			Task:       row.Task,
			First:      row.First,
			Outcome:    row.Outcome,
			ExitReason: row.ExitReason,
			StartedAt:  row.StartedAt,
			DurationNS: row.Duration.Nanoseconds(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// loggingMiddleware logs HTTP requests at DEBUG level (method, path, status, duration).
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
