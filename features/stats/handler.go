package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"ragdocs/internal/middleware"
	"ragdocs/internal/queue"
	"ragdocs/internal/vector"
)

type QueueCounter interface {
	Counts(ctx context.Context) (map[queue.Status]int, error)
}

type VectorStore interface {
	ListSources(ctx context.Context) ([]vector.Source, error)
	CountChunks(ctx context.Context) (int, error)
}

type Handler struct {
	queue       QueueCounter
	vectorStore VectorStore
}

func NewHandler(q QueueCounter, v VectorStore) *Handler {
	return &Handler{queue: q, vectorStore: v}
}

type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

type StatsResponse struct {
	Sources int        `json:"sources"`
	Chunks  int        `json:"chunks"`
	Queue   QueueStats `json:"queue"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	slog.InfoContext(ctx, "getting stats", "correlationId", correlationID)

	counts, err := h.queue.Counts(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count queue items", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count queue items", http.StatusInternalServerError)
		return
	}

	sources, err := h.vectorStore.ListSources(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list sources", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count sources", http.StatusInternalServerError)
		return
	}

	chunks, err := h.vectorStore.CountChunks(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count chunks", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count chunks", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Sources: len(sources),
		Chunks:  chunks,
		Queue: QueueStats{
			Pending:    counts[queue.StatusPending],
			Processing: counts[queue.StatusProcessing],
			Completed:  counts[queue.StatusCompleted],
			Failed:     counts[queue.StatusFailed],
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
