// Package serve exposes the pipeline over HTTP: a rendered report page, a
// JSON result API, run history, health, and Prometheus metrics. The dataset
// file can be watched so edits re-run the analysis automatically.
package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/metapipe/internal/config"
	"git.home.luguber.info/inful/metapipe/internal/logfields"
	"git.home.luguber.info/inful/metapipe/internal/pipeline"
	"git.home.luguber.info/inful/metapipe/internal/report"
	"git.home.luguber.info/inful/metapipe/internal/runlog"
	"git.home.luguber.info/inful/metapipe/internal/version"
)

const watchDebounce = 2 * time.Second

// ErrConfigChanged reports that the watched configuration file was
// rewritten. Run returns it after a clean shutdown so the caller can
// rebuild the server from the new file.
var ErrConfigChanged = errors.New("serve: configuration changed")

// Server runs the pipeline on demand and serves its results.
type Server struct {
	cfg        *config.Config
	runner     *pipeline.Runner
	store      *runlog.Store
	metrics    *Metrics
	start      time.Time
	configPath string
	debounce   time.Duration
	reload     chan struct{}

	refreshMu sync.Mutex

	mu       sync.RWMutex
	latest   *pipeline.Outcome
	lastErr  error
	runs     int
	failures int
}

// New builds a server. The run store may be nil; the history endpoint then
// reports no runs.
func New(cfg *config.Config, runner *pipeline.Runner, store *runlog.Store) *Server {
	return &Server{
		cfg:      cfg,
		runner:   runner,
		store:    store,
		metrics:  NewMetrics(nil),
		start:    time.Now(),
		debounce: watchDebounce,
		reload:   make(chan struct{}, 1),
	}
}

// WatchConfig makes Run stop with ErrConfigChanged whenever the given
// configuration file changes.
func (s *Server) WatchConfig(path string) {
	s.configPath = path
}

// Run executes an initial pipeline pass and serves until the context is
// canceled.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.Serve.Watch && s.cfg.Dataset.Path == "" {
		return fmt.Errorf("serve: watch requires a dataset path")
	}

	s.refresh(ctx)

	if s.cfg.Serve.Watch {
		w, err := newWatcher(s.cfg.Dataset.Path, s.debounce, func() { s.refresh(ctx) })
		if err != nil {
			return err
		}
		if err := w.start(ctx); err != nil {
			w.stop()
			return err
		}
		defer w.stop()
	}

	if s.configPath != "" {
		w, err := newWatcher(s.configPath, s.debounce, func() {
			select {
			case s.reload <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return err
		}
		if err := w.start(ctx); err != nil {
			w.stop()
			return err
		}
		defer w.stop()
	}

	interval, err := s.cfg.WatchInterval()
	if err != nil {
		return err
	}
	if interval > 0 {
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("serve: create scheduler: %w", err)
		}
		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() { s.refresh(ctx) }),
			gocron.WithName("periodic-run"),
		)
		if err != nil {
			return fmt.Errorf("serve: schedule periodic run: %w", err)
		}
		scheduler.Start()
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				slog.Error("stopping scheduler", logfields.Error(err))
			}
		}()
		slog.Info("periodic re-run enabled", slog.Duration("every", interval))
	}

	ln, err := net.Listen("tcp", s.cfg.Serve.Listen)
	if err != nil {
		return fmt.Errorf("serve: listen on %s: %w", s.cfg.Serve.Listen, err)
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	slog.Info("http server started", slog.String("listen", s.cfg.Serve.Listen))

	var cause error
	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: http server: %w", err)
	case <-s.reload:
		cause = ErrConfigChanged
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: shutdown: %w", err)
	}
	slog.Info("http server stopped")
	return cause
}

// refresh runs one pipeline pass and publishes the state. Concurrent
// triggers serialize here.
func (s *Server) refresh(ctx context.Context) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	start := time.Now()
	outcome, err := s.runner.Run(ctx)
	s.metrics.ObserveRun(time.Since(start), err == nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	if err != nil {
		s.failures++
		s.lastErr = err
		slog.Error("pipeline run failed", logfields.Error(err))
		return
	}
	s.lastErr = nil
	s.latest = &outcome
	s.metrics.SetResult(outcome.Result)
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleReport)
	mux.HandleFunc("/api/result", s.handleResult)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/run", s.handleTrigger)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func (s *Server) snapshot() (*pipeline.Outcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.lastErr
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	latest, lastErr := s.snapshot()
	if latest == nil {
		status := http.StatusServiceUnavailable
		msg := "no successful run yet"
		if lastErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, lastErr)
		}
		http.Error(w, msg, status)
		return
	}

	md := report.RenderMarkdown(latest.Result, report.Options{
		Title:       s.cfg.Report.Title,
		Diagnostics: latest.Checks,
	})
	page, err := htmlPage(s.title(), md)
	if err != nil {
		slog.Error("report page render failed", logfields.Error(err))
		http.Error(w, "report render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		slog.Error("writing report page", logfields.Error(err))
	}
}

func (s *Server) title() string {
	if s.cfg.Report.Title != "" {
		return s.cfg.Report.Title
	}
	return "Meta-analysis"
}

// resultResponse is the JSON shape of /api/result.
type resultResponse struct {
	RunID      string         `json:"run_id"`
	Dataset    string         `json:"dataset"`
	Model      string         `json:"model"`
	Summary    runlog.Summary `json:"summary"`
	Warnings   int            `json:"warnings"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS float64        `json:"duration_ms"`
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	latest, lastErr := s.snapshot()
	if latest == nil {
		code := http.StatusServiceUnavailable
		body := map[string]string{"error": "no successful run yet"}
		if lastErr != nil {
			body["detail"] = lastErr.Error()
		}
		writeJSON(w, code, body)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{
		RunID:      latest.RunID,
		Dataset:    latest.Result.Dataset,
		Model:      latest.Result.Model.String(),
		Summary:    runlog.Summarize(latest.Result),
		Warnings:   latest.Checks.WarningCount(),
		StartedAt:  latest.StartedAt.UTC(),
		DurationMS: float64(latest.Duration) / float64(time.Millisecond),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, []runlog.Record{})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	recs, err := s.store.History(r.Context(), limit)
	if err != nil {
		slog.Error("history query failed", logfields.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history query failed"})
		return
	}
	if recs == nil {
		recs = []runlog.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST required"})
		return
	}
	s.refresh(r.Context())

	latest, lastErr := s.snapshot()
	if lastErr != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": lastErr.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed", "run_id": latest.RunID})
}

// healthResponse is the JSON shape of /healthz.
type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRunID string    `json:"last_run_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	runs, failures := s.runs, s.failures
	var lastID string
	if s.latest != nil {
		lastID = s.latest.RunID
	}
	degraded := s.lastErr != nil
	s.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if degraded {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   version.Version,
		Uptime:    time.Since(s.start).Seconds(),
		Runs:      runs,
		Failures:  failures,
		LastRunID: lastID,
	})
}

// writeJSON encodes into a buffer first so a marshal failure never sends a
// partial body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("encoding JSON response", logfields.Error(err))
		http.Error(w, "encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("writing JSON response body", logfields.Error(err))
	}
}
