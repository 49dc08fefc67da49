// Package server exposes the HTTP surface of the service: health and readiness
// probes, the reconciler status snapshot, Prometheus metrics and a
// token-protected manual tick. Every request carries a correlation id.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options configures NewRouter.
type Options struct {
	Status StatusSource
	Ticker Ticker
	// Checks run in order on /readyz; the first failure marks the service not ready.
	Checks []ReadyCheck
	// AdminToken protects /admin routes. Empty leaves them open (dev mode).
	AdminToken string
	// AdminRequestsPerMinute limits /admin routes per client IP. Zero means 10.
	AdminRequestsPerMinute int
	// TracingService names the HTTP server spans. Empty disables HTTP tracing.
	TracingService string
}

// NewRouter returns the HTTP handler with all routes.
func NewRouter(opts Options) http.Handler {
	h := NewHandlers(opts.Status, opts.Ticker, opts.Checks...)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(correlation)
	if opts.TracingService != "" {
		r.Use(tracing(opts.TracingService))
	}

	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)
	r.Get("/status", h.HandleStatus)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Use(adminAuth(opts.AdminToken))
		r.Use(adminRateLimit(opts.AdminRequestsPerMinute))
		r.Post("/tick", h.HandleAdminTick)
	})
	return r
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, addr string, handler http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, handler)
}

// Serve is Start on an existing listener.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		// A manual tick can take a while on large deployments.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
