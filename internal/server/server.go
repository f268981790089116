// Package server exposes the local control surface of the assistant: health
// and readiness probes, the Prometheus /metrics endpoint, and a WebSocket
// status feed that UI frontends subscribe to.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liveprompt/liveprompt/internal/health"
	"github.com/liveprompt/liveprompt/internal/observe"
)

// Server is the local HTTP server. It implements session.StatusNotifier via
// the embedded status hub, so the session manager can push status lines to
// every connected frontend.
type Server struct {
	addr    string
	log     *slog.Logger
	hub     *statusHub
	httpSrv *http.Server
}

// Config configures a [Server].
type Config struct {
	// ListenAddr is the TCP address to bind (e.g., "127.0.0.1:8970").
	ListenAddr string

	// Health serves /healthz and /readyz. When nil a checker-less handler
	// is used.
	Health *health.Handler

	// Logger for server lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics instruments. Defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// New creates a Server with all routes registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Server{
		addr: cfg.ListenAddr,
		log:  cfg.Logger,
		hub:  newStatusHub(cfg.Logger),
	}

	mux := http.NewServeMux()

	// The WebSocket feed bypasses the timing middleware: the upgrade hijacks
	// the connection and its lifetime is a session, not a request latency.
	mux.HandleFunc("GET /ws", s.hub.handleWS)

	timed := http.NewServeMux()
	cfg.Health.Register(timed)
	timed.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("/", observe.Middleware(cfg.Metrics)(timed))

	s.httpSrv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the underlying route handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// NotifyStatus broadcasts a status line to all subscribed frontends.
func (s *Server) NotifyStatus(status string) {
	s.hub.broadcast(status)
}

// NotifyResponse broadcasts a streamed model response delta to all subscribed
// frontends.
func (s *Server) NotifyResponse(text string) {
	s.hub.broadcastText(text)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.closeAll()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
