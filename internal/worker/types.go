package worker

import (
	"context"

	"ragdocs/internal/extract"
	"ragdocs/internal/queue"
	"ragdocs/internal/vector"
)

type Queue interface {
	Claim(ctx context.Context) (*queue.Item, error)
	MarkCompleted(ctx context.Context, url string) error
	MarkFailed(ctx context.Context, url, reason string) error
	Requeue(ctx context.Context, url string) error
	Epoch() uint64
}

type ContentExtractor interface {
	ExtractContent(ctx context.Context, url string) (*extract.Content, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	DeleteByURL(ctx context.Context, urls []string) error
	Upsert(ctx context.Context, chunks []vector.Chunk) error
}

// EventPublisher is satisfied by *nsq.Producer.
type EventPublisher interface {
	Publish(topic string, body []byte) error
}
