// Package server exposes the extraction pipeline over HTTP: a multipart scan
// endpoint, a websocket variant with stage progress, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/recibo/internal/receipt"
)

// Processor is the slice of the pipeline the server needs. The websocket
// handler builds its own per-connection pipeline to attach a progress
// callback, so the constructor also takes a factory.
type Processor interface {
	Process(ctx context.Context, img receipt.Image) (*receipt.ParsedReceipt, error)
}

// ProcessorFactory builds a Processor with a progress callback attached.
type ProcessorFactory func(progress func(stage string)) Processor

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	MaxUploadMB     int64
	ShutdownTimeout time.Duration
	RateLimit       *RateLimitConfig
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	processor   Processor
	factory     ProcessorFactory
	corsOrigin  string
	maxUploadMB int64
	limiter     *RateLimiter
}

// New creates a server around an already-built pipeline. factory may be nil;
// the websocket endpoint then processes without stage progress.
func New(cfg Config, processor Processor, factory ProcessorFactory) *Server {
	s := &Server{
		processor:   processor,
		factory:     factory,
		corsOrigin:  cfg.CORSOrigin,
		maxUploadMB: cfg.MaxUploadMB,
	}
	if cfg.RateLimit != nil {
		s.limiter = NewRateLimiter(*cfg.RateLimit)
	}
	return s
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.withMiddleware(s.healthHandler))
	mux.HandleFunc("/scan", s.withMiddleware(s.rateLimited(s.scanHandler)))
	mux.HandleFunc("/ws/scan", s.scanWebSocketHandler)
	mux.Handle("/metrics", promhttp.Handler())
}

// Run serves until the context is canceled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, processor Processor, factory ProcessorFactory) error {
	s := New(cfg, processor, factory)
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	slog.Info("shutting down server")
	return httpServer.Shutdown(shutdownCtx)
}
