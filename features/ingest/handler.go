package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ragdocs/internal/apperr"
	"ragdocs/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

type addRequest struct {
	URL  string   `json:"url"`
	URLs []string `json:"urls"`
}

// Add enqueues {"url": ...} or {"urls": [...]} and starts processing.
func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}
	urls := req.URLs
	if len(urls) == 0 && req.URL != "" {
		urls = []string{req.URL}
	}
	if len(urls) == 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "URL or array of URLs is required", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "adding urls to queue", "count", len(urls))

	items, err := h.service.Enqueue(ctx, urls)
	if err != nil {
		h.writeFailure(ctx, w, "failed to enqueue urls", err)
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{
		"data": items,
		"meta": map[string]int{"count": len(items)},
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.service.Snapshot(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "failed to read queue", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": items,
		"meta": map[string]int{"count": len(items)},
	})
}

func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.service.Clear(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "failed to clear queue", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"message": "Queue cleared successfully", "removed": n},
	})
}

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	msg := "Queue processing started"
	if !h.service.Process(ctx) {
		msg = "Queue processing already running"
	}
	h.writeJSON(ctx, w, http.StatusAccepted, map[string]interface{}{
		"data": map[string]string{"message": msg},
	})
}

func (h *Handler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.service.RetryFailed(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "failed to retry failed items", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": items,
		"meta": map[string]int{"count": len(items)},
	})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	kind := apperr.KindOf(err)
	slog.ErrorContext(ctx, msg, "error", err, "kind", kind)
	h.writeError(ctx, w, apperr.Code(kind), apperr.PublicMessage(err), apperr.HTTPStatus(kind))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
