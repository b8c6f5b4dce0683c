package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"ragdocs/internal/apperr"
)

// Queue is the ingestion work queue. It validates input, enforces the item
// lifecycle, and exposes an epoch that Clear bumps so an active drain can stop
// claiming new work.
type Queue struct {
	store  Store
	epoch  atomic.Uint64
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{store: store, logger: logger}
}

// Init recovers items that were processing when the previous process stopped.
func (q *Queue) Init(ctx context.Context) error {
	n, err := q.store.RecoverInFlight(ctx)
	if err != nil {
		return wrapStorage("recover in-flight items", err)
	}
	if n > 0 {
		q.logger.InfoContext(ctx, "requeued in-flight items", "count", n)
	}
	return nil
}

func (q *Queue) Close() error {
	return q.store.Close()
}

// Enqueue validates and deduplicates urls and records a pending item for each
// URL that is not already pending or processing. Invalid input rejects the
// whole call.
func (q *Queue) Enqueue(ctx context.Context, urls []string) ([]Item, error) {
	clean, err := NormalizeURLs(urls)
	if err != nil {
		return nil, err
	}

	items, err := q.store.Enqueue(ctx, clean)
	if err != nil {
		return nil, wrapStorage("enqueue", err)
	}
	q.logger.InfoContext(ctx, "urls enqueued", "requested", len(clean), "created", len(items))
	return items, nil
}

func (q *Queue) ListPending(ctx context.Context) ([]Item, error) {
	items, err := q.store.ListPending(ctx)
	if err != nil {
		return nil, wrapStorage("list pending", err)
	}
	return items, nil
}

func (q *Queue) Claim(ctx context.Context) (*Item, error) {
	item, err := q.store.Claim(ctx)
	if err != nil {
		return nil, wrapStorage("claim", err)
	}
	return item, nil
}

func (q *Queue) MarkProcessing(ctx context.Context, url string) error {
	return q.mark(ctx, url, StatusProcessing, "")
}

func (q *Queue) MarkCompleted(ctx context.Context, url string) error {
	return q.mark(ctx, url, StatusCompleted, "")
}

func (q *Queue) MarkFailed(ctx context.Context, url, reason string) error {
	return q.mark(ctx, url, StatusFailed, reason)
}

// Requeue returns an interrupted processing item to pending. It keeps its
// sequence, so it is claimed again before later items.
func (q *Queue) Requeue(ctx context.Context, url string) error {
	return q.mark(ctx, url, StatusPending, "")
}

func (q *Queue) mark(ctx context.Context, url string, to Status, reason string) error {
	_, err := q.store.Update(ctx, url, func(item *Item) (bool, error) {
		return transition(item, to, reason)
	})
	if err != nil {
		return wrapStorage("mark "+string(to), err)
	}
	return nil
}

// Clear removes every item that is not currently processing and bumps the
// epoch. The in-flight item, if any, keeps its record and completes normally.
func (q *Queue) Clear(ctx context.Context) (int, error) {
	q.epoch.Add(1)
	n, err := q.store.Clear(ctx)
	if err != nil {
		return 0, wrapStorage("clear", err)
	}
	q.logger.InfoContext(ctx, "queue cleared", "removed", n)
	return n, nil
}

func (q *Queue) Epoch() uint64 {
	return q.epoch.Load()
}

func (q *Queue) Snapshot(ctx context.Context) ([]Item, error) {
	items, err := q.store.Snapshot(ctx)
	if err != nil {
		return nil, wrapStorage("snapshot", err)
	}
	return items, nil
}

// RetryFailed re-enqueues every failed item.
func (q *Queue) RetryFailed(ctx context.Context) ([]Item, error) {
	items, err := q.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var failed []string
	for _, it := range items {
		if it.Status == StatusFailed {
			failed = append(failed, it.URL)
		}
	}
	if len(failed) == 0 {
		return nil, nil
	}
	return q.Enqueue(ctx, failed)
}

// Counts returns the number of items per status.
func (q *Queue) Counts(ctx context.Context) (map[Status]int, error) {
	items, err := q.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	counts := map[Status]int{
		StatusPending:    0,
		StatusProcessing: 0,
		StatusCompleted:  0,
		StatusFailed:     0,
	}
	for _, it := range items {
		counts[it.Status]++
	}
	return counts, nil
}

// NormalizeURLs trims, validates and deduplicates raw URLs, keeping first-seen order.
func NormalizeURLs(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, apperr.New(apperr.KindValidation, "at least one url is required", nil)
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		u := strings.TrimSpace(r)
		if err := validateURL(u); err != nil {
			return nil, err
		}
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return apperr.New(apperr.KindValidation, "url is empty", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("invalid url %q", raw), err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("url %q must be absolute http(s)", raw), nil)
	}
	return nil
}

// wrapStorage classifies err as a storage failure unless it already carries a kind.
func wrapStorage(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return StorageError(op, err)
}
