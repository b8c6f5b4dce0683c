// Package ingest exposes queue control: enqueue, snapshot, clear, process
// and retry of failed items.
package ingest

import (
	"context"
	"log/slog"

	"ragdocs/internal/queue"
)

type Queue interface {
	Enqueue(ctx context.Context, urls []string) ([]queue.Item, error)
	Snapshot(ctx context.Context) ([]queue.Item, error)
	Clear(ctx context.Context) (int, error)
	RetryFailed(ctx context.Context) ([]queue.Item, error)
}

// Drainer runs the ingestion worker in the background.
type Drainer interface {
	Trigger(ctx context.Context)
	Running() bool
}

type Service struct {
	queue   Queue
	drainer Drainer
	logger  *slog.Logger
}

func NewService(q Queue, d Drainer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{queue: q, drainer: d, logger: logger}
}

// Enqueue records urls and starts a background drain when anything new was queued.
func (s *Service) Enqueue(ctx context.Context, urls []string) ([]queue.Item, error) {
	items, err := s.queue.Enqueue(ctx, urls)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return []queue.Item{}, nil
	}
	s.drainer.Trigger(ctx)
	return items, nil
}

func (s *Service) Snapshot(ctx context.Context) ([]queue.Item, error) {
	items, err := s.queue.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []queue.Item{}
	}
	return items, nil
}

func (s *Service) Clear(ctx context.Context) (int, error) {
	return s.queue.Clear(ctx)
}

// Process starts a background drain. It reports false when one was already running.
func (s *Service) Process(ctx context.Context) bool {
	wasRunning := s.drainer.Running()
	s.drainer.Trigger(ctx)
	return !wasRunning
}

func (s *Service) RetryFailed(ctx context.Context) ([]queue.Item, error) {
	items, err := s.queue.RetryFailed(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		s.logger.InfoContext(ctx, "retrying failed items", "count", len(items))
		s.drainer.Trigger(ctx)
	}
	if items == nil {
		items = []queue.Item{}
	}
	return items, nil
}
