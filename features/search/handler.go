// Package search serves semantic queries over HTTP.
package search

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ragdocs/internal/apperr"
	"ragdocs/internal/middleware"
	"ragdocs/internal/retrieval"
)

type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]retrieval.SearchResult, error)
}

type Handler struct {
	searcher Searcher
}

func NewHandler(s Searcher) *Handler {
	return &Handler{searcher: s}
}

type Request struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// Search answers {"query": ..., "limit": n} with {"results": [...]}.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Query is required", http.StatusBadRequest)
		return
	}
	if req.Limit < 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "limit must not be negative", http.StatusBadRequest)
		return
	}

	results, err := h.searcher.Search(ctx, req.Query, req.Limit)
	if err != nil {
		kind := apperr.KindOf(err)
		slog.ErrorContext(ctx, "search failed", "error", err, "kind", kind)
		h.writeError(ctx, w, apperr.Code(kind), apperr.PublicMessage(err), apperr.HTTPStatus(kind))
		return
	}
	if results == nil {
		results = []retrieval.SearchResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"results": results}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
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
