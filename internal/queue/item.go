package queue

import (
	"errors"
	"fmt"
	"time"

	"ragdocs/internal/apperr"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Active reports whether an item in this status blocks a new enqueue of the same URL.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusProcessing
}

type Item struct {
	URL        string    `json:"url"`
	Status     Status    `json:"status"`
	Seq        uint64    `json:"seq"`
	LastError  string    `json:"lastError,omitempty"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

var (
	ErrItemNotFound      = errors.New("queue item not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StorageError wraps a backend failure.
func StorageError(op string, err error) error {
	return apperr.New(apperr.KindStorage, op, err)
}

func notFound(url string) error {
	return apperr.New(apperr.KindNotFound, url, ErrItemNotFound)
}

// transition applies to onto item following the pending -> processing -> completed|failed
// lifecycle. An interrupted processing item may go back to pending. Re-applying
// the current status is reported as unchanged.
func transition(item *Item, to Status, reason string) (bool, error) {
	if item.Status == to {
		return false, nil
	}

	allowed := false
	switch to {
	case StatusPending:
		allowed = item.Status == StatusProcessing
	case StatusProcessing:
		allowed = item.Status == StatusPending
	case StatusCompleted:
		allowed = item.Status == StatusProcessing
	case StatusFailed:
		allowed = item.Status == StatusPending || item.Status == StatusProcessing
	}
	if !allowed {
		return false, apperr.New(apperr.KindValidation,
			fmt.Sprintf("%s: %s -> %s", item.URL, item.Status, to), ErrInvalidTransition)
	}

	item.Status = to
	if to == StatusFailed {
		item.LastError = reason
	} else {
		item.LastError = ""
	}
	return true, nil
}
