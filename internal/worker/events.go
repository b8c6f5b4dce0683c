package worker

import (
	"context"
	"encoding/json"
	"time"

	"ragdocs/internal/config"
	"ragdocs/internal/middleware"
	"ragdocs/internal/queue"
)

// ItemEvent is published after an item reaches a terminal status.
type ItemEvent struct {
	URL           string       `json:"url"`
	Status        queue.Status `json:"status"`
	Error         string       `json:"error,omitempty"`
	Chunks        int          `json:"chunks"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	FinishedAt    time.Time    `json:"finished_at"`
}

func (w *Worker) publish(ctx context.Context, ev ItemEvent) {
	if w.publisher == nil {
		return
	}
	ev.CorrelationID = middleware.GetCorrelationID(ctx)

	body, err := json.Marshal(ev)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to marshal item event", "error", err)
		return
	}
	if err := w.publisher.Publish(config.TopicIngestResult, body); err != nil {
		w.logger.WarnContext(ctx, "failed to publish item event", "topic", config.TopicIngestResult, "error", err)
	}
}
