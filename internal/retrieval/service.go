// Package retrieval answers semantic queries against the vector index.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"ragdocs/internal/apperr"
	"ragdocs/internal/middleware"
	"ragdocs/internal/vector"
)

const (
	DefaultTopK          = 5
	DefaultSnippetLength = 200
)

type SearchResult struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, k int) ([]vector.Match, error)
}

type Config struct {
	TopK          int
	SnippetLength int
}

type Service struct {
	embedder Embedder
	store    VectorStore
	cfg      Config
	queryLog *QueryLogger
	logger   *slog.Logger
}

// NewService builds a search service. queryLog may be nil.
func NewService(e Embedder, s VectorStore, cfg Config, queryLog *QueryLogger, logger *slog.Logger) *Service {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = DefaultSnippetLength
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embedder: e, store: s, cfg: cfg, queryLog: queryLog, logger: logger}
}

// Search embeds query and returns up to k chunks ordered by similarity.
// k <= 0 uses the configured top-N. No match is not an error.
func (s *Service) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.New(apperr.KindValidation, "query is required", nil)
	}
	if k <= 0 {
		k = s.cfg.TopK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := s.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, SearchResult{
			URL:     m.Chunk.URL,
			Title:   m.Chunk.Title,
			Content: m.Chunk.Text,
			Snippet: Snippet(m.Chunk.Text, s.cfg.SnippetLength),
			Score:   m.Score,
		})
	}

	if s.queryLog != nil {
		s.queryLog.Log(QueryLogEntry{
			Query:         query,
			NumResults:    len(results),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	s.logger.DebugContext(ctx, "search finished", "results", len(results), "k", k)
	return results, nil
}

// Snippet shortens text to at most n runes, appending "..." when cut.
func Snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimRightFunc(string(runes[:n]), func(r rune) bool { return r == ' ' || r == '\n' }) + "..."
}
