// Package server exposes a small read-only status API next to the scheduler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"poof_palace_engine/config"
	"poof_palace_engine/logging"
	"poof_palace_engine/monitoring"
	"poof_palace_engine/orchestrator"
)

const defaultReportCapacity = 50

type Server struct {
	cfg     *config.Config
	metrics *monitoring.Metrics
	store   *reportStore
	logger  logging.Logger
	started time.Time
}

// reportStore keeps the most recent cycle reports, oldest dropped first.
type reportStore struct {
	mu       sync.Mutex
	capacity int
	reports  []orchestrator.CycleReport
}

func newStore(capacity int) *reportStore {
	if capacity <= 0 {
		capacity = defaultReportCapacity
	}
	return &reportStore{capacity: capacity}
}

func (s *reportStore) add(r orchestrator.CycleReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	if over := len(s.reports) - s.capacity; over > 0 {
		s.reports = append([]orchestrator.CycleReport(nil), s.reports[over:]...)
	}
}

// latest returns up to limit reports, newest first.
func (s *reportStore) latest(limit int) []orchestrator.CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.reports) {
		limit = len(s.reports)
	}
	out := make([]orchestrator.CycleReport, 0, limit)
	for i := len(s.reports) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.reports[i])
	}
	return out
}

func New(cfg *config.Config, metrics *monitoring.Metrics, logger logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		cfg:     cfg,
		metrics: metrics,
		store:   newStore(defaultReportCapacity),
		logger:  logger,
		started: time.Now(),
	}, nil
}

// Record implements orchestrator.Recorder.
func (s *Server) Record(report orchestrator.CycleReport) {
	s.store.add(report)
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logMiddleware)

	r.Get("/health/live", s.handleLive)
	r.Get("/api/config", s.handleConfig)
	r.Get("/api/cycles", s.handleCycles)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("status server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("status server shutdown error")
	}
	return <-errCh
}

// --- Handlers ---

type liveResp struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

type cyclesResp struct {
	Cycles []orchestrator.CycleReport `json:"cycles"`
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, liveResp{Status: "ok", Uptime: time.Since(s.started).Round(time.Second).String()})
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Summary())
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, cyclesResp{Cycles: s.store.latest(limit)})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logging.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
