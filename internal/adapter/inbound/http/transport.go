package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warden-gate/wardengate/internal/domain/auth"
	"github.com/warden-gate/wardengate/internal/service"
)

// Transport is the inbound HTTP adapter. It owns the server, the
// metrics registry, and the route table.
type Transport struct {
	security *service.SecurityService
	chat     *service.ChatService
	keys     *service.KeyAdminService

	server          *http.Server
	addr            string
	tenantHeader    string
	shutdownTimeout time.Duration
	metrics         *Metrics
	logger          *slog.Logger
	selfChecks      map[string]func(context.Context) bool
}

// Option is a functional option for configuring Transport.
type Option func(*Transport)

// WithAddr sets the listen address. Default is "127.0.0.1:8087".
func WithAddr(addr string) Option {
	return func(t *Transport) { t.addr = addr }
}

// WithTenantHeader names the header used as the anonymous rate-limit
// identity.
func WithTenantHeader(name string) Option {
	return func(t *Transport) { t.tenantHeader = name }
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.shutdownTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) { t.logger = logger }
}

// WithMetrics injects an existing metrics set, so the hooks wired into
// the limiter and provider chain share the transport's registry.
func WithMetrics(m *Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// WithSelfCheck registers a named check for the selftest endpoint. The
// check must be cheap; it runs on every selftest request.
func WithSelfCheck(name string, fn func(context.Context) bool) Option {
	return func(t *Transport) { t.selfChecks[name] = fn }
}

// NewTransport creates the HTTP transport over the given services.
func NewTransport(security *service.SecurityService, chat *service.ChatService, keys *service.KeyAdminService, opts ...Option) *Transport {
	t := &Transport{
		security:        security,
		chat:            chat,
		keys:            keys,
		addr:            "127.0.0.1:8087",
		shutdownTimeout: 10 * time.Second,
		logger:          slog.Default(),
		selfChecks:      make(map[string]func(context.Context) bool),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = NewMetrics()
	}
	return t
}

// Handler builds the full route table with the middleware chain.
func (t *Transport) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/chat", chatHandler(t.security, t.chat, t.tenantHeader))

	admin := &adminHandlers{security: t.security, keys: t.keys, tenantHeader: t.tenantHeader}
	admin.register(mux)

	mux.Handle("GET /health", healthHandler())
	mux.Handle("GET /metrics", promhttp.HandlerFor(t.metrics.Registry(), promhttp.HandlerOpts{
		Registry: t.metrics.Registry(),
	}))
	mux.Handle("GET /metrics/flat", t.flatMetricsHandler())
	mux.Handle("GET /security/selftest", t.selfTestHandler())
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	var handler http.Handler = mux
	handler = SecurityHeaders(handler)
	handler = RequestIDMiddleware(t.logger)(handler)
	handler = MetricsMiddleware(t.metrics)(handler)
	return handler
}

// flatMetricsHandler serves the plain-text counter snapshot. Unlike the
// open Prometheus scrape endpoint it carries request counts per route,
// so reads are restricted to operators.
func (t *Transport) flatMetricsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		if _, err := t.security.Admit(r.Context(), inboundRequest(r, body, t.tenantHeader),
			auth.RoleAdmin, auth.RoleAnalyst); err != nil {
			writeError(w, err)
			return
		}

		text, err := t.metrics.RenderFlat()
		if err != nil {
			LoggerFromContext(r.Context()).Error("failed to render metrics", "error", err)
			http.Error(w, "metrics unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(text))
	})
}

// selfTestHandler reports whether the security machinery is intact:
// the built-in checks plus anything registered with WithSelfCheck.
// Admin only; a degraded result is still a 200, the status field tells.
func (t *Transport) selfTestHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := readBody(w, r)
		if !ok {
			return
		}
		if _, err := t.security.Admit(r.Context(), inboundRequest(r, body, t.tenantHeader),
			auth.RoleAdmin); err != nil {
			writeError(w, err)
			return
		}

		checks := map[string]bool{
			"security_headers_enabled": true,
			"body_limit_configured":    maxBodyBytes > 0,
		}
		for name, check := range t.selfChecks {
			checks[name] = check(r.Context())
		}
		status := "ok"
		for _, passed := range checks {
			if !passed {
				status = "degraded"
				break
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": status, "checks": checks})
	})
}

// Start begins accepting connections. It blocks until the context is
// cancelled or the server fails.
func (t *Transport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		t.logger.Info("starting HTTP server", "addr", t.addr)
		if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

func (t *Transport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}
	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *Transport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
