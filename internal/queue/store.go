package queue

import "context"

// UpdateFunc mutates an item in place and reports whether it changed.
// Unchanged items are not written back.
type UpdateFunc func(item *Item) (bool, error)

// Store is the durable record of queue items, keyed by URL.
type Store interface {
	// Enqueue writes a fresh pending item for every URL that is not already
	// pending or processing, and returns the written items in input order.
	Enqueue(ctx context.Context, urls []string) ([]Item, error)
	ListPending(ctx context.Context) ([]Item, error)
	// Claim moves the oldest pending item to processing. It returns nil when
	// nothing is pending.
	Claim(ctx context.Context) (*Item, error)
	Update(ctx context.Context, url string, fn UpdateFunc) (*Item, error)
	// Clear removes every item that is not processing.
	Clear(ctx context.Context) (int, error)
	Snapshot(ctx context.Context) ([]Item, error)
	// RecoverInFlight returns processing items to pending.
	RecoverInFlight(ctx context.Context) (int, error)
	Close() error
}
