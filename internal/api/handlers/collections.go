package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quipubase/quipubase/internal/api/types"
)

// CreateCollection handles POST /v1/collections
// The request body is a JSON Schema document. Submitting a schema that is
// already registered returns the existing collection unchanged.
func (h *Handler) CreateCollection(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, types.ErrorCodeProtocol, "failed to read request body")
		return
	}

	col, err := h.registry.CreateCollection(r.Context(), body)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.CollectionResponse{
		ID:     col.ID,
		SHA:    col.SHA,
		Schema: col.Schema,
	})
}

// ListCollections handles GET /v1/collections
func (h *Handler) ListCollections(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.registry.ListCollections(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}

	start, end := parsePagination(r, len(summaries))
	writeJSON(w, http.StatusOK, summaries[start:end])
}

// GetCollection handles GET /v1/collections/{collection_id}
func (h *Handler) GetCollection(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collection_id")

	col, err := h.registry.GetCollection(r.Context(), collectionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.CollectionResponse{
		ID:     col.ID,
		SHA:    col.SHA,
		Schema: col.Schema,
	})
}

// DeleteCollection handles DELETE /v1/collections/{collection_id}
// Deleting an absent collection is not an error: the response code field
// reports 0 when a collection was removed and 1 when none existed.
func (h *Handler) DeleteCollection(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collection_id")

	deleted, err := h.registry.DeleteCollection(r.Context(), collectionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	code := 1
	if deleted {
		code = 0
	}
	writeJSON(w, http.StatusOK, types.DeleteCollectionResponse{Code: code})
}

// CollectionTool handles GET /v1/collections/{collection_id}/tool
// It renders the collection schema as a function-calling tool definition.
// The format query param selects the vendor shape and defaults to openai.
func (h *Handler) CollectionTool(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collection_id")

	model, err := h.registry.CompiledFor(r.Context(), collectionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "openai"
	}

	switch format {
	case "openai":
		writeRawJSON(w, http.StatusOK, model.ToolOpenAI())
	case "anthropic":
		writeRawJSON(w, http.StatusOK, model.ToolAnthropic())
	default:
		writeError(w, http.StatusBadRequest, types.ErrorCodeProtocol,
			fmt.Sprintf("unknown tool format %q: want openai or anthropic", format))
	}
}

// writeRawJSON writes pre-encoded JSON without re-marshalling.
func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
