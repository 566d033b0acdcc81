package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/extensions"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer/consumer"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
)

// IngestFunc applies one content event, the same way the Kafka consumer does.
type IngestFunc func(ctx context.Context, event consumer.ContentEvent) error

// WithIngest enables PUT and DELETE on /api/v1/inputs/{id}. Routes must be
// called afterwards.
func (h *Handler) WithIngest(fn IngestFunc) *Handler {
	h.ingest = fn
	return h
}

// PutInput indexes the document in the body under the input id in the path.
// ?index= restricts the update to one index.
func (h *Handler) PutInput(w http.ResponseWriter, r *http.Request) {
	id, ok := h.inputID(w, r)
	if !ok {
		return
	}
	var doc extensions.Document
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&doc); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: decoding document: %v", apperrors.ErrInvalidInput, err))
		return
	}
	h.apply(w, r, consumer.ContentEvent{
		Op:       consumer.OpUpsert,
		InputID:  id,
		Document: &doc,
		Index:    r.URL.Query().Get("index"),
	})
}

func (h *Handler) DeleteInput(w http.ResponseWriter, r *http.Request) {
	id, ok := h.inputID(w, r)
	if !ok {
		return
	}
	h.apply(w, r, consumer.ContentEvent{
		Op:      consumer.OpDelete,
		InputID: id,
		Index:   r.URL.Query().Get("index"),
	})
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, event consumer.ContentEvent) {
	if err := h.ingest(r.Context(), event); err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Debug("input applied", "op", event.Op, "input_id", event.InputID)
	h.writeJSON(w, http.StatusOK, map[string]any{"op": event.Op, "inputId": event.InputID})
}

func (h *Handler) inputID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil || id == 0 {
		h.writeError(w, r, fmt.Errorf("%w: input id must be a positive 32-bit integer", apperrors.ErrInvalidInput))
		return 0, false
	}
	return uint32(id), true
}
