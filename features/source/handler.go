package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"ragdocs/internal/apperr"
	"ragdocs/internal/extract"
	"ragdocs/internal/middleware"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sources, err := h.service.List(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "failed to list sources", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": sources,
		"meta": map[string]int{"count": len(sources)},
	})
}

// Remove deletes {"url": ...} or {"urls": [...]} from the index.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		URL  string   `json:"url"`
		URLs []string `json:"urls"`
	}
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

	n, err := h.service.Remove(ctx, urls)
	if err != nil {
		h.writeFailure(ctx, w, "failed to remove documents", err)
		return
	}
	h.writeRemoved(ctx, w, n)
}

func (h *Handler) RemoveAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	n, err := h.service.RemoveAll(ctx)
	if err != nil {
		h.writeFailure(ctx, w, "failed to remove all documents", err)
		return
	}
	h.writeRemoved(ctx, w, n)
}

func (h *Handler) ExtractURLs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		URL        string   `json:"url"`
		AddToQueue bool     `json:"add_to_queue"`
		SameHost   bool     `json:"same_host"`
		PathPrefix bool     `json:"path_prefix"`
		Exclusions []string `json:"exclusions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "URL is required", http.StatusBadRequest)
		return
	}

	filter := extract.LinkFilter{SameHost: req.SameHost, PathPrefix: req.PathPrefix, Exclude: req.Exclusions}
	res, err := h.service.ExtractURLs(ctx, req.URL, filter, req.AddToQueue)
	if err != nil {
		h.writeFailure(ctx, w, "failed to extract urls", err)
		return
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{"data": res})
}

func (h *Handler) writeRemoved(ctx context.Context, w http.ResponseWriter, n int) {
	msg := "No documents to remove"
	if n > 0 {
		plural := "s"
		if n == 1 {
			plural = ""
		}
		msg = fmt.Sprintf("%d document%s removed successfully", n, plural)
	}
	h.writeJSON(ctx, w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{"message": msg, "count": n},
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
