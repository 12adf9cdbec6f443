// Package api exposes the optional observability HTTP listener.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server serves /healthz and /metrics while a run is in progress.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer builds the listener for addr.
func NewServer(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics listener started", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics listener: %w", err)
	}
	return nil
}
