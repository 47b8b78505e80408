// Package api exposes the HTTP interface for the audit service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pagevet/pagevet/internal/audit"
	"github.com/pagevet/pagevet/internal/config"
	"github.com/pagevet/pagevet/internal/metrics"
	"github.com/pagevet/pagevet/internal/scheduler"
)

// ScanRunner creates, resumes and runs scan sessions. *scheduler.Scheduler
// implements it; tests substitute fakes.
type ScanRunner interface {
	NewSession(ctx context.Context, url string, rules []audit.Rule) (*scheduler.Session, error)
	Resume(ctx context.Context, scanID string) (*scheduler.Session, error)
	Run(ctx context.Context, sess *scheduler.Session) ([]audit.ScanResult, error)
}

// Server wires HTTP handlers to the scheduler and scan store.
type Server struct {
	router  chi.Router
	runner  ScanRunner
	scans   audit.ScanStore
	logger  *zap.Logger
	cfg     config.Config
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewServer constructs a Server with middleware and routes. baseCtx bounds
// the background scan goroutines; cancel it to stop in-flight scans at the
// next batch boundary.
func NewServer(
	baseCtx context.Context,
	runner ScanRunner,
	scans audit.ScanStore,
	logger *zap.Logger,
	cfg config.Config,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	s := &Server{
		runner:  runner,
		scans:   scans,
		logger:  logger,
		cfg:     cfg,
		baseCtx: baseCtx,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(cfg.ServerTimeout()))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.submitScan)
			r.Route("/{scan_id}", func(r chi.Router) {
				r.Get("/", s.getScan)
				r.Get("/results", s.getResults)
				r.Post("/resume", s.resumeScan)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until all background scan goroutines have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitScanRequest struct {
	URL   string       `json:"url"`
	Rules []audit.Rule `json:"rules"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req submitScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sess, err := s.runner.NewSession(r.Context(), req.URL, req.Rules)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidInput) || errors.Is(err, audit.ErrInvalidURL) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.startScan(sess)
	writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": sess.ScanID})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	scan, err := s.scans.GetScan(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scan": scan})
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	scan, err := s.scans.GetScan(r.Context(), scanID)
	if err != nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	summary, err := s.scans.GetSummary(r.Context(), scanID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusConflict, "scan has not finished yet")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch results")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scan": scan, "summary": summary})
}

func (s *Server) resumeScan(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	sess, err := s.runner.Resume(r.Context(), scanID)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no checkpoint for scan")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.startScan(sess)
	writeJSON(w, http.StatusAccepted, map[string]string{"scan_id": sess.ScanID})
}

// startScan runs the session on a background goroutine so the submit call
// returns immediately. Failures are recorded in the scan store by the
// scheduler; here they are only logged.
func (s *Server) startScan(sess *scheduler.Session) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.runner.Run(s.baseCtx, sess); err != nil {
			s.logger.Warn("scan run ended with error",
				zap.String("scan_id", sess.ScanID),
				zap.Error(err),
			)
		}
	}()
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
