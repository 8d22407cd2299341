package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mattjoyce/msghook/internal/log"
	"github.com/mattjoyce/msghook/internal/metrics"
	"github.com/mattjoyce/msghook/internal/webhook"
)

// unmatchedRoute labels HTTP metrics for requests that matched no route.
const unmatchedRoute = "unmatched"

// Server represents the HTTP API server
type Server struct {
	config  Config
	store   MessageStore
	metrics *metrics.Registry
	webhook http.Handler
	logger  *slog.Logger
	server  *http.Server
}

// New creates a new API server instance. A nil store starts the server in
// degraded mode: health and metrics are served, storage endpoints answer 503.
func New(config Config, st MessageStore, registry *metrics.Registry, logger *slog.Logger) *Server {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 60 * time.Second
	}
	if registry == nil {
		registry = metrics.NewRegistry()
	}

	s := &Server{
		config:  config,
		store:   st,
		metrics: registry,
		logger:  logger,
	}
	if st != nil {
		s.webhook = webhook.New(config.Webhook, st, registry, logger.With("component", "webhook"))
	}
	return s
}

// Configured reports whether a store is attached.
func (s *Server) Configured() bool {
	return s.store != nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.setupRoutes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "configured", s.Configured())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(s.metricsMiddleware)
	r.Use(middleware.Recoverer)

	// Ops endpoints, always served.
	r.Get("/health/live", s.handleLive)
	r.Get("/health/ready", s.handleReady)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/openapi.json", s.handleOpenAPI)

	// Storage-backed endpoints.
	r.Group(func(r chi.Router) {
		r.Use(s.requireStore)
		r.Post("/webhook", s.handleWebhook)
		r.Get("/messages", s.handleListMessages)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.WithRequest(s.logger, middleware.GetReqID(r.Context())).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// metricsMiddleware records one HTTP outcome per request, keyed by the
// matched route pattern.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			path := unmatchedRoute
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.metrics.RecordHTTP(path, status)
		}()
		next.ServeHTTP(ww, r)
	})
}

// requireStore rejects storage-backed requests while the service is not configured.
func (s *Server) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.store == nil {
			s.writeError(w, http.StatusServiceUnavailable, "service not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}
