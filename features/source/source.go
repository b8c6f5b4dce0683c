// Package source manages indexed documents: listing them, removing them and
// discovering new URLs from a page.
package source

import (
	"context"
	"fmt"
	"log/slog"

	"ragdocs/internal/extract"
	"ragdocs/internal/queue"
	"ragdocs/internal/vector"
)

type VectorIndex interface {
	ListSources(ctx context.Context) ([]vector.Source, error)
	DeleteByURL(ctx context.Context, urls []string) error
}

type LinkExtractor interface {
	ExtractLinks(ctx context.Context, url string) ([]string, error)
}

// Enqueuer queues URLs for ingestion.
type Enqueuer interface {
	Enqueue(ctx context.Context, urls []string) ([]queue.Item, error)
}

// ExtractResult lists the links found on a page and, when requested, the
// items that were queued from them.
type ExtractResult struct {
	URLs   []string     `json:"urls"`
	Queued []queue.Item `json:"queued,omitempty"`
}

type Service struct {
	index     VectorIndex
	extractor LinkExtractor
	enqueuer  Enqueuer
	logger    *slog.Logger
}

func NewService(idx VectorIndex, ex LinkExtractor, enq Enqueuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{index: idx, extractor: ex, enqueuer: enq, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]vector.Source, error) {
	sources, err := s.index.ListSources(ctx)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []vector.Source{}
	}
	return sources, nil
}

// Remove deletes every chunk of the given URLs. Unknown URLs are not an error.
func (s *Service) Remove(ctx context.Context, urls []string) (int, error) {
	clean, err := queue.NormalizeURLs(urls)
	if err != nil {
		return 0, err
	}
	if err := s.index.DeleteByURL(ctx, clean); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "documents removed", "count", len(clean))
	return len(clean), nil
}

// RemoveAll deletes every indexed source.
func (s *Service) RemoveAll(ctx context.Context) (int, error) {
	sources, err := s.index.ListSources(ctx)
	if err != nil {
		return 0, err
	}
	if len(sources) == 0 {
		return 0, nil
	}

	urls := make([]string, len(sources))
	for i, src := range sources {
		urls[i] = src.URL
	}
	if err := s.index.DeleteByURL(ctx, urls); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "all documents removed", "count", len(urls))
	return len(urls), nil
}

// ExtractURLs returns the links on pageURL that pass filter. With addToQueue
// they are also queued for ingestion. Links are never followed further.
func (s *Service) ExtractURLs(ctx context.Context, pageURL string, filter extract.LinkFilter, addToQueue bool) (*ExtractResult, error) {
	clean, err := queue.NormalizeURLs([]string{pageURL})
	if err != nil {
		return nil, err
	}
	pageURL = clean[0]

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	links, err := s.extractor.ExtractLinks(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if links, err = filter.Apply(pageURL, links); err != nil {
		return nil, err
	}

	res := &ExtractResult{URLs: links}
	if res.URLs == nil {
		res.URLs = []string{}
	}
	if !addToQueue || len(links) == 0 {
		return res, nil
	}

	queued, err := s.enqueuer.Enqueue(ctx, links)
	if err != nil {
		return nil, fmt.Errorf("queue extracted urls: %w", err)
	}
	res.Queued = queued
	s.logger.InfoContext(ctx, "extracted urls queued", "url", pageURL, "found", len(links), "queued", len(queued))
	return res, nil
}
