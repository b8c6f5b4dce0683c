// Package ollama embeds text with a local Ollama server through langchaingo.
package ollama

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	lcollama "github.com/tmc/langchaingo/llms/ollama"
)

const defaultModel = "nomic-embed-text"

type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

func NewEmbedder(serverURL, model string, dimension int) (*Embedder, error) {
	if model == "" {
		model = defaultModel
	}

	opts := []lcollama.Option{lcollama.WithModel(model)}
	if serverURL != "" {
		opts = append(opts, lcollama.WithServerURL(serverURL))
	}
	client, err := lcollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}

	return &Embedder{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		logger:    slog.Default().With("component", "ollama-embedder"),
	}, nil
}

func (e *Embedder) Name() string { return "ollama" }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.logger.DebugContext(ctx, "generating embedding", "model", e.model, "length", len(text))

	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return vec, nil
}
