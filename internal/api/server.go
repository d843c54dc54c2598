// Package api exposes the tracking session over an HTTP JSON API.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/orbitrack/internal/auth"
	"github.com/star/orbitrack/internal/health"
	"github.com/star/orbitrack/internal/httputil"
	"github.com/star/orbitrack/internal/metrics"
	"github.com/star/orbitrack/internal/session"
	"github.com/star/orbitrack/internal/stream"
)

// Config holds the listener settings.
type Config struct {
	Addr       string
	Auth       auth.Config
	TrustProxy bool
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server for sess. The SSE route is
// registered only when streams is non-nil.
func NewServer(cfg Config, logger *slog.Logger, sess *session.Session, streams *stream.Handler) *Server {
	mux := http.NewServeMux()
	h := &handlers{sess: sess, logger: logger}

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(health.Check{Name: "catalog", Ready: h.ready}))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/catalog", h.catalog)
	mux.HandleFunc("GET /api/v1/catalog/{norad_id}", h.object)

	mux.HandleFunc("GET /api/v1/clock", h.clock)
	mux.HandleFunc("POST /api/v1/clock/toggle", h.togglePlay)
	mux.HandleFunc("POST /api/v1/clock/multiplier", h.setMultiplier)
	mux.HandleFunc("POST /api/v1/clock/instant", h.setInstant)

	mux.HandleFunc("GET /api/v1/selection", h.selection)
	mux.HandleFunc("GET /api/v1/selection/future", h.future)
	mux.HandleFunc("POST /api/v1/selection/{norad_id}", h.selectObject)
	mux.HandleFunc("DELETE /api/v1/selection", h.clearSelection)

	mux.HandleFunc("POST /api/v1/filter", h.setFilter)
	mux.HandleFunc("PUT /api/v1/target", h.setTarget)
	mux.HandleFunc("DELETE /api/v1/target", h.clearTarget)
	mux.HandleFunc("GET /api/v1/intercepts", h.intercepts)
	mux.HandleFunc("GET /api/v1/passes", h.passes)

	if streams != nil {
		mux.HandleFunc("GET /api/v1/stream/snapshots", streams.HandleSnapshots)
	}

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(cfg.Auth)(handler)
	handler = loggingMiddleware(logger, cfg.TrustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// SSE handlers extend their own write deadline per message.
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Handler returns the root handler with its middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
