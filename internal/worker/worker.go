// Package worker drains the ingestion queue: each claimed URL is extracted,
// chunked, embedded and written to the vector index, then marked completed
// or failed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"ragdocs/internal/apperr"
	"ragdocs/internal/middleware"
	"ragdocs/internal/queue"
	"ragdocs/internal/text"
	"ragdocs/internal/vector"
)

var ErrNoContent = errors.New("no indexable content")

type Config struct {
	MaxTokens    int
	Overlap      int
	Concurrency  int
	ItemTimeout  time.Duration
	EmbedTimeout time.Duration
}

func (c *Config) defaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 60 * time.Second
	}
}

type Option func(*Worker)

func WithPublisher(p EventPublisher) Option {
	return func(w *Worker) { w.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

type Worker struct {
	queue     Queue
	extractor ContentExtractor
	embedder  Embedder
	index     VectorIndex
	publisher EventPublisher
	cfg       Config
	logger    *slog.Logger

	running atomic.Bool
	rerun   atomic.Bool

	scheduler *ants.Pool
	pool      *ants.Pool

	// life is cancelled by Close; every drain stops claiming once it ends.
	life    context.Context
	stop    context.CancelFunc
	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func New(q Queue, ex ContentExtractor, emb Embedder, idx VectorIndex, cfg Config, opts ...Option) (*Worker, error) {
	cfg.defaults()
	w := &Worker{
		queue:     q,
		extractor: ex,
		embedder:  emb,
		index:     idx,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "worker")
	w.life, w.stop = context.WithCancel(context.Background())

	scheduler, err := ants.NewPool(1, ants.WithNonblocking(true))
	if err != nil {
		w.stop()
		return nil, fmt.Errorf("worker scheduler: %w", err)
	}
	w.scheduler = scheduler

	if cfg.Concurrency > 1 {
		pool, err := ants.NewPool(cfg.Concurrency)
		if err != nil {
			scheduler.Release()
			w.stop()
			return nil, fmt.Errorf("worker pool: %w", err)
		}
		w.pool = pool
	}
	return w, nil
}

// Drain processes pending items until the queue is empty, Clear is called,
// ctx ends or the worker is closed. Only one drain runs at a time: a call made
// while another is active returns false immediately and makes the active
// drain take one more pass.
func (w *Worker) Drain(ctx context.Context) bool {
	if !w.acquire() {
		return false
	}
	ctx, cancel := w.bind(ctx)
	defer cancel()
	for {
		w.rerun.Store(false)
		w.drainPass(ctx)
		w.running.Store(false)

		if !w.rerun.Load() || ctx.Err() != nil {
			return true
		}
		if !w.running.CompareAndSwap(false, true) {
			return true
		}
	}
}

// acquire takes the drain slot, or records a re-run for the holder. rerun is
// stored before running is read, and the holder releases running before it
// reads rerun, so one of the two always sees the other.
func (w *Worker) acquire() bool {
	for {
		if w.running.CompareAndSwap(false, true) {
			return true
		}
		w.rerun.Store(true)
		if w.running.Load() {
			return false
		}
	}
}

// Running reports whether a drain is active.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// bind returns a context that also ends when the worker is closed.
func (w *Worker) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(w.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// track registers a scheduled drain with Close. It refuses once Close started.
func (w *Worker) track() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return false
	}
	w.pending.Add(1)
	return true
}

// Trigger schedules a background drain and returns immediately. A trigger
// while a drain is queued or running is folded into it. The drain outlives
// the caller's request and stops only when the worker is closed.
func (w *Worker) Trigger(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for {
		if !w.track() {
			w.logger.WarnContext(ctx, "worker closed, drain not scheduled")
			return
		}
		err := w.scheduler.Submit(func() {
			defer w.pending.Done()
			w.Drain(ctx)
		})
		if err == nil {
			return
		}
		w.pending.Done()

		if !errors.Is(err, ants.ErrPoolOverload) {
			w.logger.ErrorContext(ctx, "failed to schedule drain", "error", err)
			return
		}
		// The scheduled drain is still running: leave it a re-run request.
		// If it is already past its last check, wait for the slot and resubmit.
		w.rerun.Store(true)
		if w.running.Load() {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Close stops drains from claiming further items, waits for the item in
// progress and releases the pools. Triggers after Close are ignored.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.stop()
	w.pending.Wait()
	w.scheduler.Release()
	if w.pool != nil {
		w.pool.Release()
	}
	return nil
}

func (w *Worker) drainPass(ctx context.Context) {
	epoch := w.queue.Epoch()
	start := time.Now()
	var processed atomic.Int64

	if w.pool == nil {
		processed.Add(int64(w.claimLoop(ctx, epoch)))
	} else {
		var wg sync.WaitGroup
		for i := 0; i < w.cfg.Concurrency; i++ {
			wg.Add(1)
			err := w.pool.Submit(func() {
				defer wg.Done()
				processed.Add(int64(w.claimLoop(ctx, epoch)))
			})
			if err != nil {
				wg.Done()
				w.logger.ErrorContext(ctx, "failed to start drain worker", "error", err)
			}
		}
		wg.Wait()
	}

	if n := processed.Load(); n > 0 {
		w.logger.InfoContext(ctx, "drain pass finished", "processed", n, "duration", time.Since(start))
	}
}

// claimLoop claims and processes items until none are pending, the context
// ends, or the queue epoch moves.
func (w *Worker) claimLoop(ctx context.Context, epoch uint64) int {
	n := 0
	for ctx.Err() == nil {
		if w.queue.Epoch() != epoch {
			w.logger.InfoContext(ctx, "queue cleared, stopping drain")
			return n
		}

		item, err := w.queue.Claim(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "failed to claim queue item", "error", err)
			return n
		}
		if item == nil {
			return n
		}

		w.process(ctx, item)
		n++
	}
	return n
}

func (w *Worker) process(ctx context.Context, item *queue.Item) {
	itemCtx := middleware.WithCorrelationID(ctx, uuid.New().String())
	if w.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(itemCtx, w.cfg.ItemTimeout)
		defer cancel()
	}
	// Status writes must land even if the item deadline or drain context expired.
	markCtx := context.WithoutCancel(itemCtx)

	start := time.Now()
	w.logger.InfoContext(itemCtx, "processing item", "url", item.URL)

	chunks, err := w.ingest(itemCtx, item.URL)
	if err != nil && ctx.Err() != nil {
		// Interrupted by the caller or by Close, not by the item itself.
		w.logger.InfoContext(itemCtx, "item interrupted, returning it to the queue", "url", item.URL, "error", err)
		if rErr := w.queue.Requeue(markCtx, item.URL); rErr != nil {
			w.logger.ErrorContext(itemCtx, "failed to requeue interrupted item", "url", item.URL, "error", rErr)
		}
		return
	}
	if err != nil {
		w.logger.WarnContext(itemCtx, "item failed", "url", item.URL, "kind", apperr.KindOf(err), "error", err)
		if mErr := w.queue.MarkFailed(markCtx, item.URL, err.Error()); mErr != nil {
			w.logger.ErrorContext(itemCtx, "failed to mark item failed", "url", item.URL, "error", mErr)
		}
		w.publish(markCtx, ItemEvent{URL: item.URL, Status: queue.StatusFailed, Error: err.Error(), FinishedAt: time.Now().UTC()})
		return
	}

	if err := w.queue.MarkCompleted(markCtx, item.URL); err != nil {
		w.logger.ErrorContext(itemCtx, "failed to mark item completed", "url", item.URL, "error", err)
	}
	w.logger.InfoContext(itemCtx, "item completed", "url", item.URL, "chunks", chunks, "duration", time.Since(start))
	w.publish(markCtx, ItemEvent{URL: item.URL, Status: queue.StatusCompleted, Chunks: chunks, FinishedAt: time.Now().UTC()})
}

// ingest extracts, chunks and embeds url, then replaces its chunks in the
// index. Every chunk is embedded before the old ones are deleted so a failed
// embedding leaves the previous version searchable.
func (w *Worker) ingest(ctx context.Context, url string) (int, error) {
	content, err := w.extractor.ExtractContent(ctx, url)
	if err != nil {
		return 0, err
	}

	pieces := text.ChunkMarkdown(content.Text, w.cfg.MaxTokens, w.cfg.Overlap)
	if len(pieces) == 0 {
		return 0, apperr.New(apperr.KindValidation, url, ErrNoContent)
	}

	now := time.Now().UTC()
	chunks := make([]vector.Chunk, 0, len(pieces))
	for i, p := range pieces {
		vec, err := w.embed(ctx, contextualText(content.Title, url, p), i)
		if err != nil {
			return 0, err
		}
		chunks = append(chunks, vector.Chunk{
			ID:         vector.ChunkID(url, i),
			URL:        url,
			Title:      content.Title,
			Text:       p.Content,
			Vector:     vec,
			ChunkIndex: i,
			Type:       string(p.Type),
			Language:   p.Language,
			CreatedAt:  now,
		})
	}

	if err := w.index.DeleteByURL(ctx, []string{url}); err != nil {
		return 0, fmt.Errorf("delete previous chunks: %w", err)
	}
	if err := w.index.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("upsert chunks: %w", err)
	}
	return len(chunks), nil
}

func (w *Worker) embed(ctx context.Context, input string, index int) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, w.cfg.EmbedTimeout)
	defer cancel()

	vec, err := w.embedder.Embed(embedCtx, input)
	if err != nil {
		return nil, fmt.Errorf("embed chunk %d: %w", index, err)
	}
	return vec, nil
}

// contextualText prefixes the chunk with its page metadata so the vector
// carries where the text came from.
func contextualText(title, url string, c text.ChunkResult) string {
	return fmt.Sprintf("Title: %s\nURL: %s\nType: %s\n---\n%s", title, url, c.Type, c.Content)
}
