// Package api provides the HTTP server and routing.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quipubase/quipubase/internal/api/handlers"
	"github.com/quipubase/quipubase/internal/api/types"
	"github.com/quipubase/quipubase/internal/config"
	"github.com/quipubase/quipubase/internal/metrics"
	"github.com/quipubase/quipubase/internal/pubsub"
	"github.com/quipubase/quipubase/internal/registry"
	"github.com/quipubase/quipubase/internal/store"
)

// Server represents the HTTP server.
type Server struct {
	config   *config.Config
	registry *registry.Registry
	store    *store.Store
	bus      *pubsub.Bus
	version  string
	router   chi.Router
	server   *http.Server
	logger   *slog.Logger
	metrics  *metrics.Metrics
	draining atomic.Bool
}

// NewServer creates a new HTTP server. The metrics instance is shared with
// the event bus so mutation and subscriber series land in one registry.
func NewServer(cfg *config.Config, reg *registry.Registry, st *store.Store, bus *pubsub.Bus, logger *slog.Logger, m *metrics.Metrics, version string) *Server {
	s := &Server{
		config:   cfg,
		registry: reg,
		store:    st,
		bus:      bus,
		version:  version,
		logger:   logger,
		metrics:  m,
	}

	s.setupRouter()
	return s
}

// Metrics returns the metrics instance for recording custom metrics.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// setupRouter configures the HTTP router.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	if s.config.Metrics.Enabled {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(s.drainMiddleware)

	// Create handlers
	h := handlers.New(s.registry, s.store, s.bus, s.logger, handlers.Config{
		Version:           s.version,
		KeepaliveInterval: time.Duration(s.config.Stream.KeepaliveInterval) * time.Second,
		WriteTimeout:      time.Duration(s.config.Server.WriteTimeout) * time.Second,
		Draining:          s.draining.Load,
	})

	// Service banner and health
	r.Get("/", h.Banner)
	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			s.metrics.Handler().ServeHTTP(w, r)
		})
	}

	// API documentation
	r.Get("/openapi.yaml", handleOpenAPISpec)
	r.Get("/docs", handleSwaggerUI)

	requestTimeout := time.Duration(s.config.Server.RequestTimeout) * time.Second

	r.Route("/v1/collections", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			// Collection admin
			r.Post("/", h.CreateCollection)
			r.Get("/", h.ListCollections)
			r.Get("/{collection_id}", h.GetCollection)
			r.Delete("/{collection_id}", h.DeleteCollection)
			r.Get("/{collection_id}/tool", h.CollectionTool)

			// Record mutations
			r.Post("/objects/{collection_id}", h.Mutate)
		})

		// Event streams outlive any request deadline, so the stream route
		// stays outside the timeout group.
		r.Get("/objects/{collection_id}", h.Stream)
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// drainMiddleware rejects new work once shutdown has begun. Probes and
// metrics stay reachable so orchestrators can observe the drain.
func (s *Server) drainMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() && r.URL.Path != "/healthz" && r.URL.Path != "/readyz" && r.URL.Path != "/metrics" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(types.ErrorResponse{
				ErrorCode: types.ErrorCodeShutdown,
				Message:   "server is shutting down",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BeginDrain flips the server into draining mode: readiness reports 503 and
// new requests are refused while in-flight ones finish.
func (s *Server) BeginDrain() {
	if s.draining.CompareAndSwap(false, true) {
		s.logger.Info("drain started")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := s.config.Address()
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: time.Duration(s.config.Server.ReadTimeout) * time.Second,
		// No global write timeout: event streams hold the response open.
		// Stream writes renew a per-write deadline instead.
		WriteTimeout: 0,
	}

	s.logger.Info("starting server", slog.String("address", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the HTTP router for testing.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Address returns the server address.
func (s *Server) Address() string {
	return fmt.Sprintf("http://%s", s.config.Address())
}
