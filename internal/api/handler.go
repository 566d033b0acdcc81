// Package api exposes queries over the registered indexes and the
// administrative operations of the registry over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/incremental-index/pkg/logger"
)

const maxBodyBytes = 1 << 20

var errManualRebuild = errors.New("rebuild requested by operator")

// Searcher evaluates queries. *query.Service implements it.
type Searcher interface {
	Search(ctx context.Context, req query.Request) (*query.Result, error)
}

// Registry is the part of *indexer.Registry the handlers use.
type Registry interface {
	Get(name string) (indexer.Handle, error)
	Indexes() []indexer.IndexInfo
	FlushAll() error
	CheckRebuild(ctx context.Context) error
	CompleteRebuild(ctx context.Context, name string) error
}

type Handler struct {
	registry Registry
	searcher Searcher
	ingest   IngestFunc
	logger   *slog.Logger
}

func New(registry Registry, searcher Searcher) *Handler {
	return &Handler{
		registry: registry,
		searcher: searcher,
		logger:   logger.WithComponent("api"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("GET /api/v1/indexes", h.ListIndexes)
	mux.HandleFunc("GET /api/v1/indexes/{name}", h.GetIndex)
	mux.HandleFunc("POST /admin/flush", h.FlushAll)
	mux.HandleFunc("POST /admin/indexes/{name}/flush", h.Flush)
	mux.HandleFunc("POST /admin/indexes/{name}/rebuild", h.Rebuild)
	mux.HandleFunc("POST /admin/indexes/{name}/rebuild/complete", h.CompleteRebuild)
	mux.HandleFunc("POST /admin/indexes/{name}/buffering", h.SetBuffering)
	mux.HandleFunc("POST /admin/indexes/{name}/caches/clear", h.ClearCaches)
	if h.ingest != nil {
		mux.HandleFunc("PUT /api/v1/inputs/{id}", h.PutInput)
		mux.HandleFunc("DELETE /api/v1/inputs/{id}", h.DeleteInput)
	}
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req query.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: decoding query: %v", apperrors.ErrInvalidInput, err))
		return
	}
	result, err := h.searcher.Search(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Debug("query served",
		"index", result.Index,
		"keys", len(req.Keys),
		"total", result.Total,
		"cached", result.Cached,
	)
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) ListIndexes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"indexes": h.registry.Indexes()})
}

func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	for _, info := range h.registry.Indexes() {
		if info.Name == name {
			h.writeJSON(w, http.StatusOK, info)
			return
		}
	}
	h.writeError(w, r, fmt.Errorf("%w: %s", apperrors.ErrIndexNotFound, name))
}

func (h *Handler) FlushAll(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.FlushAll(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	x, ok := h.handle(w, r)
	if !ok {
		return
	}
	pending := x.BufferedKeys()
	if err := x.Flush(); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "flushed", "keys": pending})
}

// Rebuild marks the index for rebuild. With ?start=true the rebuild is started
// right away instead of on the next flush tick.
func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	x, ok := h.handle(w, r)
	if !ok {
		return
	}
	x.RequestRebuild(errManualRebuild)
	logger.FromContext(r.Context()).Warn("manual rebuild requested", "index", x.Name())
	if start, _ := strconv.ParseBool(r.URL.Query().Get("start")); start {
		if err := h.registry.CheckRebuild(r.Context()); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild_requested"})
}

func (h *Handler) CompleteRebuild(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := h.registry.CompleteRebuild(r.Context(), name); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) SetBuffering(w http.ResponseWriter, r *http.Request) {
	x, ok := h.handle(w, r)
	if !ok {
		return
	}
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil || body.Enabled == nil {
		h.writeError(w, r, fmt.Errorf("%w: body must be {\"enabled\": bool}", apperrors.ErrInvalidInput))
		return
	}
	if err := x.SetBufferingEnabled(*body.Enabled); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"buffering": x.IsBufferingEnabled()})
}

func (h *Handler) ClearCaches(w http.ResponseWriter, r *http.Request) {
	x, ok := h.handle(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"cleared": x.ClearCaches()})
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) (indexer.Handle, bool) {
	x, err := h.registry.Get(r.PathValue("name"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return x, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// writeError maps err to a status code. Server-side failures are logged and
// their details withheld from the client.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
		message = http.StatusText(status)
	}
	h.writeJSON(w, status, map[string]string{"error": message})
}
