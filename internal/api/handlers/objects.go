package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quipubase/quipubase/internal/api/types"
	"github.com/quipubase/quipubase/internal/pubsub"
)

// Mutate handles POST /v1/collections/objects/{collection_id}
// The request body carries one mutation envelope; the event verb selects
// the operation and the response echoes it back.
func (h *Handler) Mutate(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collection_id")

	var req types.MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrorCodeProtocol, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeCoreError(w, err)
		return
	}

	model, err := h.registry.CompiledFor(r.Context(), collectionID)
	if err != nil {
		writeCoreError(w, err)
		return
	}

	var data interface{}
	switch req.Event {
	case types.VerbCreate:
		data, err = h.store.Create(r.Context(), collectionID, model, req.Data)
	case types.VerbRead:
		data, err = h.store.Retrieve(r.Context(), collectionID, model, req.ID)
	case types.VerbUpdate:
		data, err = h.store.Update(r.Context(), collectionID, model, req.ID, req.Data)
	case types.VerbDelete:
		data, err = h.store.Delete(r.Context(), collectionID, model, req.ID)
	case types.VerbQuery:
		data, err = h.store.Find(r.Context(), collectionID, model, req.Data, req.Limit, req.Offset)
	case types.VerbStop:
		// Broadcast the terminal marker. Live streams exit, the
		// collection and its records stay.
		h.bus.Publish(collectionID, pubsub.KindStop, "", nil)
		data = nil
	}
	if err != nil {
		writeCoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, types.EventResponse{
		Collection: collectionID,
		Data:       data,
		Event:      req.Event,
	})
}

// Stream handles GET /v1/collections/objects/{collection_id}
// It upgrades the response to a server-sent event stream and forwards every
// mutation published on the collection until the client disconnects or a
// stop marker arrives.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collection_id")

	// Reject unknown collections before committing to the stream.
	if _, err := h.registry.GetCollection(r.Context(), collectionID); err != nil {
		writeCoreError(w, err)
		return
	}

	sub := h.bus.Subscribe(collectionID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("connection does not support event streams",
			"collection", collectionID, "error", err)
		return
	}

	h.logger.Debug("stream opened", "collection", collectionID)
	defer h.logger.Debug("stream closed", "collection", collectionID)

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !h.writeFrame(rc, w, ": keep-alive\n\n") {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				// Topic torn down: collection deleted or server draining.
				return
			}
			if ev.Kind == pubsub.KindStop {
				return
			}
			frame, err := json.Marshal(types.StreamFrame{
				Event: verbFor(ev.Kind),
				Data:  ev.Payload,
			})
			if err != nil {
				h.logger.Error("encode stream frame",
					"collection", collectionID, "record", ev.RecordID, "error", err)
				continue
			}
			if !h.writeFrame(rc, w, "data: "+string(frame)+"\n\n") {
				return
			}
		}
	}
}

// writeFrame pushes one SSE frame and reports whether the stream is still
// writable. Each write renews the per-write deadline so a stalled client
// cannot pin the connection while healthy streams stay open indefinitely.
func (h *Handler) writeFrame(rc *http.ResponseController, w http.ResponseWriter, frame string) bool {
	if h.writeWait > 0 {
		_ = rc.SetWriteDeadline(time.Now().Add(h.writeWait))
	}
	if _, err := io.WriteString(w, frame); err != nil {
		return false
	}
	return rc.Flush() == nil
}

// verbFor maps an internal event kind onto the wire verb.
func verbFor(kind pubsub.Kind) string {
	switch kind {
	case pubsub.KindCreated:
		return types.VerbCreate
	case pubsub.KindUpdated:
		return types.VerbUpdate
	case pubsub.KindDeleted:
		return types.VerbDelete
	default:
		return string(kind)
	}
}
