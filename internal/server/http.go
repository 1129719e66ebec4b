package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/teemow/meetmate/internal/instrumentation"
)

// DefaultHTTPAddr is the default address of the health and callback server.
const DefaultHTTPAddr = ":8080"

// CallbackPath is where Google redirects after the consent screen.
const CallbackPath = "/oauth/callback"

// HTTPServerConfig configures the health and OAuth callback server.
type HTTPServerConfig struct {
	Addr string

	Health *HealthChecker

	// Callback handles the Google OAuth redirect. Nil leaves the route
	// unregistered.
	Callback http.Handler

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// HTTPServer serves the health probes and the OAuth callback.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
	logger     *slog.Logger
}

// NewHTTPServer builds the server.
func NewHTTPServer(config HTTPServerConfig) *HTTPServer {
	if config.Addr == "" {
		config.Addr = DefaultHTTPAddr
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	if config.Health != nil {
		config.Health.RegisterHealthEndpoints(mux)
	}
	if config.Callback != nil {
		mux.Handle(CallbackPath, config.Callback)
	}

	return &HTTPServer{
		addr:   config.Addr,
		logger: config.Logger,
		httpServer: &http.Server{
			Addr:              config.Addr,
			Handler:           securityHeaders(instrumentHTTP(config.Metrics, mux)),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Handler returns the root handler, for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	s.logger.Info("starting http server", "addr", s.addr)
	return serve(ctx, s.httpServer)
}

// RunListener is like Run on an existing listener.
func (s *HTTPServer) RunListener(ctx context.Context, ln net.Listener) error {
	return serveListener(ctx, s.httpServer, ln)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrumentHTTP records request count and latency per route.
func instrumentHTTP(metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	if metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.RecordHTTPRequest(r.Context(), r.Method, routeLabel(r.URL.Path), rec.status, time.Since(start))
	})
}

// routeLabel bounds path cardinality to the registered routes.
func routeLabel(path string) string {
	switch path {
	case "/healthz", "/readyz", "/healthz/detailed", CallbackPath:
		return path
	default:
		return "other"
	}
}
