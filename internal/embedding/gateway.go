package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ragdocs/internal/apperr"
)

// Gateway embeds text with the primary provider and, when that fails, tries
// the fallback exactly once.
type Gateway struct {
	primary  Provider
	fallback Provider
	logger   *slog.Logger
}

// NewGateway checks that the fallback, if any, produces vectors of the same
// width as the primary.
func NewGateway(primary, fallback Provider, logger *slog.Logger) (*Gateway, error) {
	if primary == nil {
		return nil, apperr.New(apperr.KindValidation, "primary embedding provider is required", nil)
	}
	if fallback != nil && fallback.Dimension() != primary.Dimension() {
		return nil, apperr.New(apperr.KindValidation,
			fmt.Sprintf("fallback %s dimension %d does not match primary %s dimension %d",
				fallback.Name(), fallback.Dimension(), primary.Name(), primary.Dimension()), nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{primary: primary, fallback: fallback, logger: logger}, nil
}

func (g *Gateway) Dimension() int {
	return g.primary.Dimension()
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, primaryErr := embedChecked(ctx, g.primary, text)
	if primaryErr == nil {
		return vec, nil
	}

	if g.fallback == nil {
		return nil, EmbeddingError(g.primary.Name()+" failed", primaryErr)
	}

	g.logger.WarnContext(ctx, "primary embedding provider failed, trying fallback",
		"primary", g.primary.Name(), "fallback", g.fallback.Name(), "error", primaryErr)

	vec, fallbackErr := embedChecked(ctx, g.fallback, text)
	if fallbackErr == nil {
		return vec, nil
	}

	return nil, EmbeddingError("all embedding providers failed", errors.Join(
		fmt.Errorf("%s: %w", g.primary.Name(), primaryErr),
		fmt.Errorf("%s: %w", g.fallback.Name(), fallbackErr),
	))
}

func embedChecked(ctx context.Context, p Provider, text string) ([]float32, error) {
	vec, err := p.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != p.Dimension() {
		return nil, fmt.Errorf("got %d dimensions, want %d", len(vec), p.Dimension())
	}
	return vec, nil
}
