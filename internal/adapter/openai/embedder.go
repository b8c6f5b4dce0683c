// Package openai embeds text with the OpenAI embeddings API (or any
// OpenAI-compatible endpoint) through langchaingo.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

const defaultModel = "text-embedding-3-small"

type Embedder struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *slog.Logger
}

func NewEmbedder(apiKey, baseURL, model string, dimension int) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key not configured")
	}
	if model == "" {
		model = defaultModel
	}

	opts := []lcopenai.Option{
		lcopenai.WithToken(apiKey),
		lcopenai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(baseURL))
	}
	client, err := lcopenai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	return &Embedder{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		logger:    slog.Default().With("component", "openai-embedder"),
	}, nil
}

func (e *Embedder) Name() string { return "openai" }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.logger.DebugContext(ctx, "generating embedding", "model", e.model, "length", len(text))

	vecs, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("openai embed: empty result")
	}
	return vecs[0], nil
}
