// Granary - Commodity Trading Analytics and Forecasting
// Copyright 2026 Tradesight Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tradesight/granary

// Package ops serves the operational HTTP surface: liveness, readiness, and
// Prometheus metrics. It is deliberately separate from any data-plane API so
// a pipeline stall never takes the health endpoints with it.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tradesight/granary/internal/config"
	"github.com/tradesight/granary/internal/logging"
)

const readinessTimeout = 5 * time.Second

// Check is a named readiness probe. A check failing flips /readyz to 503;
// liveness is unaffected.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Server is the supervised operational HTTP server.
type Server struct {
	srv             *http.Server
	checks          []Check
	shutdownTimeout time.Duration
}

// NewServer builds the server from configuration. Checks run on every
// readiness request, in order.
func NewServer(cfg *config.OpsConfig, checks ...Check) *Server {
	s := &Server{
		checks:          checks,
		shutdownTimeout: 10 * time.Second,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	if cfg.RateLimitReqs > 0 {
		router.Use(httprate.LimitByIP(cfg.RateLimitReqs, time.Minute))
	}

	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Serve implements suture.Service: ListenAndServe in a goroutine, graceful
// Shutdown when the context is canceled. The shutdown uses a fresh context
// because the serve context is already dead by then.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	logging.Info().Str("addr", s.srv.Addr).Msg("ops server listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *Server) String() string {
	return "ops-server"
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := map[string]string{"status": "ready"}
	code := http.StatusOK
	for _, check := range s.checks {
		if err := check.Probe(ctx); err != nil {
			logging.Warn().Err(err).Str("check", check.Name).Msg("readiness check failed")
			status["status"] = "not ready"
			status[check.Name] = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			status[check.Name] = "ok"
		}
	}
	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
