// Package embedding turns text into fixed-width vectors through a primary
// provider with an optional one-shot fallback.
package embedding

import (
	"context"
	"fmt"

	"ragdocs/internal/apperr"
)

// Provider is one embedding backend.
type Provider interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

type Kind string

const (
	KindOllama Kind = "ollama"
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
)

// ProviderConfig selects and configures one provider variant.
type ProviderConfig struct {
	Kind      Kind
	Model     string
	Dimension int
	BaseURL   string
	APIKey    string
}

var defaultModels = map[Kind]string{
	KindOllama: "nomic-embed-text",
	KindOpenAI: "text-embedding-3-small",
	KindGemini: "gemini-embedding-001",
}

var modelDimensions = map[string]int{
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"all-minilm":             384,
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"gemini-embedding-001":   3072,
	"text-embedding-004":     768,
}

// Resolve fills in the default model and the known output width.
func (c ProviderConfig) Resolve() (ProviderConfig, error) {
	if _, ok := defaultModels[c.Kind]; !ok {
		return c, apperr.New(apperr.KindValidation, fmt.Sprintf("unknown embedding provider %q", c.Kind), nil)
	}
	if c.Model == "" {
		c.Model = defaultModels[c.Kind]
	}
	if c.Dimension <= 0 {
		dim, ok := modelDimensions[c.Model]
		if !ok {
			return c, apperr.New(apperr.KindValidation,
				fmt.Sprintf("unknown output dimension for model %q, set it explicitly", c.Model), nil)
		}
		c.Dimension = dim
	}
	return c, nil
}

// EmbeddingError reports that no provider produced a vector.
func EmbeddingError(msg string, err error) error {
	return apperr.New(apperr.KindEmbedding, msg, err)
}
