// Package handlers provides HTTP request handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/quipubase/quipubase/internal/api/types"
	"github.com/quipubase/quipubase/internal/kv"
	"github.com/quipubase/quipubase/internal/pubsub"
	"github.com/quipubase/quipubase/internal/registry"
	"github.com/quipubase/quipubase/internal/schema"
	"github.com/quipubase/quipubase/internal/store"
)

// defaultKeepalive paces SSE comment frames when the configuration does not.
const defaultKeepalive = 15 * time.Second

// Handler provides the HTTP handlers for the database API.
type Handler struct {
	registry  *registry.Registry
	store     *store.Store
	bus       *pubsub.Bus
	logger    *slog.Logger
	version   string
	keepalive time.Duration
	writeWait time.Duration
	draining  func() bool
}

// Config holds handler configuration.
type Config struct {
	Version           string
	KeepaliveInterval time.Duration
	WriteTimeout      time.Duration
	Draining          func() bool
}

// New creates a Handler.
func New(reg *registry.Registry, st *store.Store, bus *pubsub.Bus, logger *slog.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	keepalive := cfg.KeepaliveInterval
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}
	draining := cfg.Draining
	if draining == nil {
		draining = func() bool { return false }
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		registry:  reg,
		store:     st,
		bus:       bus,
		logger:    logger,
		version:   version,
		keepalive: keepalive,
		writeWait: cfg.WriteTimeout,
		draining:  draining,
	}
}

// Banner handles GET /
func (h *Handler) Banner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ServiceInfo{
		Name:    "quipubase",
		Version: h.version,
		Docs:    "/docs",
	})
}

// Liveness handles GET /healthz
// Always returns 200: the process is alive and serving.
func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness handles GET /readyz
// Returns 200 when storage is reachable and the server is not draining.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.draining() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "draining",
		})
		return
	}
	if !h.registry.IsHealthy(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "storage backend unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// parsePagination extracts offset and limit query params and applies them to
// a slice length, returning the start and end indices.
func parsePagination(r *http.Request, total int) (start, end int) {
	start = 0
	end = total

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			start = o
		}
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l >= 0 {
			end = start + l
		}
	}

	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	return start, end
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{
		ErrorCode: code,
		Message:   message,
	})
}

// writeCoreError maps core sentinel errors onto status and error codes.
func writeCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrProtocol):
		writeError(w, http.StatusBadRequest, types.ErrorCodeProtocol, err.Error())
	case errors.Is(err, schema.ErrSchemaInvalid),
		errors.Is(err, schema.ErrSchemaTooDeep),
		errors.Is(err, store.ErrValidation):
		writeError(w, http.StatusBadRequest, types.ErrorCodeValidation, err.Error())
	case errors.Is(err, registry.ErrCollectionNotFound):
		writeError(w, http.StatusNotFound, types.ErrorCodeCollectionNotFound, err.Error())
	case errors.Is(err, store.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, types.ErrorCodeRecordNotFound, err.Error())
	case errors.Is(err, kv.ErrStorage):
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorage, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, types.ErrorCodeStorage, err.Error())
	}
}
