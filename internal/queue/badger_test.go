package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragdocs/internal/apperr"
	"ragdocs/internal/queue"
)

func newTestQueue(t *testing.T) (*queue.Queue, *queue.BadgerStore) {
	t.Helper()
	store, err := queue.OpenBadgerStore("", true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return queue.New(store, nil), store
}

func urls(items []queue.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.URL)
	}
	return out
}

func TestQueue_EnqueueDedupes(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	created, err := q.Enqueue(ctx, []string{"https://a.dev/x", " https://a.dev/x ", "https://b.dev"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.dev/x", "https://b.dev"}, urls(created))

	again, err := q.Enqueue(ctx, []string{"https://a.dev/x"})
	require.NoError(t, err)
	assert.Empty(t, again, "pending url must not be enqueued twice")

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.dev/x", "https://b.dev"}, urls(pending))
}

func TestQueue_EnqueueRejectsInvalid(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://ok.dev", "ftp://nope"})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = q.Enqueue(ctx, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	snap, err := q.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap, "a rejected call writes nothing")
}

func TestQueue_ClaimIsFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://1.dev", "https://2.dev", "https://3.dev"})
	require.NoError(t, err)

	var order []string
	for {
		item, err := q.Claim(ctx)
		require.NoError(t, err)
		if item == nil {
			break
		}
		assert.Equal(t, queue.StatusProcessing, item.Status)
		order = append(order, item.URL)
	}
	assert.Equal(t, []string{"https://1.dev", "https://2.dev", "https://3.dev"}, order)
}

func TestQueue_ProcessingBlocksReenqueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://a.dev"})
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	created, err := q.Enqueue(ctx, []string{"https://a.dev"})
	require.NoError(t, err)
	assert.Empty(t, created)

	snap, err := q.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, queue.StatusProcessing, snap[0].Status)
}

func TestQueue_ReenqueueTerminalCreatesFreshPending(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://a.dev", "https://b.dev"})
	require.NoError(t, err)
	first, _ := q.Claim(ctx)
	require.NoError(t, q.MarkFailed(ctx, first.URL, "boom"))

	created, err := q.Enqueue(ctx, []string{"https://a.dev"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, queue.StatusPending, created[0].Status)
	assert.Empty(t, created[0].LastError)
	assert.Greater(t, created[0].Seq, first.Seq)

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://b.dev", "https://a.dev"}, urls(pending), "re-enqueued item goes to the back")
}

func TestQueue_MarkIsIdempotent(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://a.dev"})
	require.NoError(t, err)

	require.NoError(t, q.MarkProcessing(ctx, "https://a.dev"))
	require.NoError(t, q.MarkProcessing(ctx, "https://a.dev"))
	require.NoError(t, q.MarkCompleted(ctx, "https://a.dev"))
	require.NoError(t, q.MarkCompleted(ctx, "https://a.dev"))

	err = q.MarkProcessing(ctx, "https://a.dev")
	assert.ErrorIs(t, err, queue.ErrInvalidTransition)

	err = q.MarkCompleted(ctx, "https://missing.dev")
	assert.ErrorIs(t, err, queue.ErrItemNotFound)
}

func TestQueue_MarkFailedRecordsReason(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://a.dev"})
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.MarkFailed(ctx, "https://a.dev", "fetch: timeout"))

	snap, err := q.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, queue.StatusFailed, snap[0].Status)
	assert.Equal(t, "fetch: timeout", snap[0].LastError)
}

func TestQueue_RequeueKeepsPosition(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://a.dev", "https://b.dev"})
	require.NoError(t, err)
	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, "https://a.dev", claimed.URL)

	require.NoError(t, q.Requeue(ctx, claimed.URL))
	require.NoError(t, q.Requeue(ctx, claimed.URL), "requeue of a pending item is a no-op")

	next, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.dev", next.URL, "requeued item is claimed before later items")

	require.NoError(t, q.MarkCompleted(ctx, next.URL))
	err = q.Requeue(ctx, next.URL)
	assert.ErrorIs(t, err, queue.ErrInvalidTransition, "only processing items can be requeued")
}

func TestQueue_ClearKeepsProcessing(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://a.dev", "https://b.dev", "https://c.dev"})
	require.NoError(t, err)
	inFlight, err := q.Claim(ctx)
	require.NoError(t, err)

	epoch := q.Epoch()
	removed, err := q.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Greater(t, q.Epoch(), epoch)

	next, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, next, "cleared items must not be claimable")

	require.NoError(t, q.MarkCompleted(ctx, inFlight.URL))
	snap, err := q.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, queue.StatusCompleted, snap[0].Status)
}

func TestQueue_InitRecoversInFlight(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://a.dev", "https://b.dev"})
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Init(ctx))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.dev", "https://b.dev"}, urls(pending), "recovered item keeps its position")
}

func TestQueue_RetryFailed(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []string{"https://a.dev", "https://b.dev"})
	require.NoError(t, err)
	a, _ := q.Claim(ctx)
	require.NoError(t, q.MarkFailed(ctx, a.URL, "boom"))
	b, _ := q.Claim(ctx)
	require.NoError(t, q.MarkCompleted(ctx, b.URL))

	retried, err := q.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.dev"}, urls(retried))

	counts, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[queue.StatusPending])
	assert.Equal(t, 1, counts[queue.StatusCompleted])
	assert.Equal(t, 0, counts[queue.StatusFailed])
}

func TestQueue_ConcurrentClaimIsExclusive(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	var in []string
	for i := 0; i < 50; i++ {
		in = append(in, fmt.Sprintf("https://site.dev/page/%d", i))
	}
	_, err := q.Enqueue(ctx, in)
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, err := q.Claim(ctx)
				if err != nil || item == nil {
					return
				}
				mu.Lock()
				seen[item.URL]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 50)
	for u, n := range seen {
		assert.Equal(t, 1, n, "claimed more than once: %s", u)
	}
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := queue.OpenBadgerStore(dir, false, nil)
	require.NoError(t, err)
	q := queue.New(store, nil)
	_, err = q.Enqueue(ctx, []string{"https://a.dev", "https://b.dev"})
	require.NoError(t, err)
	_, err = q.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Close())

	store, err = queue.OpenBadgerStore(dir, false, nil)
	require.NoError(t, err)
	defer store.Close()
	q = queue.New(store, nil)
	require.NoError(t, q.Init(ctx))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.dev", "https://b.dev"}, urls(pending))

	created, err := q.Enqueue(ctx, []string{"https://c.dev"})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Greater(t, created[0].Seq, pending[1].Seq, "sequence keeps increasing after reopen")
}
