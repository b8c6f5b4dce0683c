package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	itemPrefix    = "item/"
	pendingPrefix = "pending/"
	seqKey        = "meta/seq"

	defaultSequenceBandwidth = 100
)

// BadgerStore keeps queue items in an embedded Badger database.
//
// Keys:
//
//	item/<url>          JSON encoded Item
//	pending/<seq BE64>  url, one entry per pending item, iterated in FIFO order
type BadgerStore struct {
	db     *badger.DB
	seq    *badger.Sequence
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

var _ Store = (*BadgerStore)(nil)

// OpenBadgerStore opens (or creates) the queue database in dir. With inMemory
// set, dir is ignored and nothing touches disk.
func OpenBadgerStore(dir string, inMemory bool, logger *slog.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create queue dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	seq, err := db.GetSequence([]byte(seqKey), defaultSequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue sequence: %w", err)
	}

	return &BadgerStore{db: db, seq: seq, now: time.Now, logger: logger}, nil
}

func itemKey(url string) []byte {
	return []byte(itemPrefix + url)
}

func pendingKey(seq uint64) []byte {
	k := make([]byte, len(pendingPrefix)+8)
	copy(k, pendingPrefix)
	binary.BigEndian.PutUint64(k[len(pendingPrefix):], seq)
	return k
}

func getItem(txn *badger.Txn, url string) (*Item, error) {
	entry, err := txn.Get(itemKey(url))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, notFound(url)
	}
	if err != nil {
		return nil, err
	}
	var item Item
	if err := entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	}); err != nil {
		return nil, err
	}
	return &item, nil
}

func putItem(txn *badger.Txn, item *Item) error {
	data, err := json.Marshal(item)
	if err != nil {
		return err
	}
	return txn.Set(itemKey(item.URL), data)
}

func (s *BadgerStore) Enqueue(ctx context.Context, urls []string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created []Item
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		var item *Item
		err := s.db.Update(func(txn *badger.Txn) error {
			existing, err := getItem(txn, u)
			if err == nil && existing.Status.Active() {
				return nil
			}
			if err != nil && !errors.Is(err, ErrItemNotFound) {
				return err
			}

			seq, err := s.seq.Next()
			if err != nil {
				return err
			}
			now := s.now().UTC()
			item = &Item{URL: u, Status: StatusPending, Seq: seq, EnqueuedAt: now, UpdatedAt: now}
			if err := putItem(txn, item); err != nil {
				return err
			}
			return txn.Set(pendingKey(seq), []byte(u))
		})
		if err != nil {
			return created, err
		}
		if item != nil {
			created = append(created, *item)
		}
	}
	return created, nil
}

func (s *BadgerStore) ListPending(ctx context.Context) ([]Item, error) {
	var items []Item
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			u, err := iter.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			item, err := getItem(txn, string(u))
			if errors.Is(err, ErrItemNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			items = append(items, *item)
		}
		return nil
	})
	return items, err
}

func (s *BadgerStore) Claim(ctx context.Context) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed *Item
	err := s.db.Update(func(txn *badger.Txn) error {
		for {
			key, u, ok, err := firstPending(txn)
			if err != nil || !ok {
				return err
			}
			if err := txn.Delete(key); err != nil {
				return err
			}

			item, err := getItem(txn, u)
			if errors.Is(err, ErrItemNotFound) {
				// stale index entry left behind by a cleared item
				continue
			}
			if err != nil {
				return err
			}
			if item.Status != StatusPending {
				continue
			}

			item.Status = StatusProcessing
			item.UpdatedAt = s.now().UTC()
			if err := putItem(txn, item); err != nil {
				return err
			}
			claimed = item
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func firstPending(txn *badger.Txn) ([]byte, string, bool, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(pendingPrefix)
	iter := txn.NewIterator(opts)
	defer iter.Close()

	iter.Rewind()
	if !iter.Valid() {
		return nil, "", false, nil
	}
	key := iter.Item().KeyCopy(nil)
	u, err := iter.Item().ValueCopy(nil)
	if err != nil {
		return nil, "", false, err
	}
	return key, string(u), true, nil
}

func (s *BadgerStore) Update(ctx context.Context, url string, fn UpdateFunc) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result *Item
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := getItem(txn, url)
		if err != nil {
			return err
		}
		before := *item

		changed, err := fn(item)
		if err != nil {
			return err
		}
		result = item
		if !changed {
			return nil
		}

		if before.Status == StatusPending && item.Status != StatusPending {
			if err := txn.Delete(pendingKey(before.Seq)); err != nil {
				return err
			}
		}
		if item.Status == StatusPending && before.Status != StatusPending {
			if err := txn.Set(pendingKey(item.Seq), []byte(item.URL)); err != nil {
				return err
			}
		}
		item.UpdatedAt = s.now().UTC()
		return putItem(txn, item)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *BadgerStore) Clear(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys [][]byte
	removed := 0
	err := s.db.View(func(txn *badger.Txn) error {
		return scanItems(txn, func(item *Item) error {
			if item.Status == StatusProcessing {
				return nil
			}
			removed++
			keys = append(keys, itemKey(item.URL))
			if item.Status == StatusPending {
				keys = append(keys, pendingKey(item.Seq))
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *BadgerStore) Snapshot(ctx context.Context) ([]Item, error) {
	var items []Item
	err := s.db.View(func(txn *badger.Txn) error {
		return scanItems(txn, func(item *Item) error {
			items = append(items, *item)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Seq < items[j].Seq })
	return items, nil
}

func (s *BadgerStore) RecoverInFlight(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recovered := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		var inFlight []*Item
		if err := scanItems(txn, func(item *Item) error {
			if item.Status == StatusProcessing {
				inFlight = append(inFlight, item)
			}
			return nil
		}); err != nil {
			return err
		}

		for _, item := range inFlight {
			item.Status = StatusPending
			item.UpdatedAt = s.now().UTC()
			if err := putItem(txn, item); err != nil {
				return err
			}
			if err := txn.Set(pendingKey(item.Seq), []byte(item.URL)); err != nil {
				return err
			}
			recovered++
		}
		return nil
	})
	return recovered, err
}

func scanItems(txn *badger.Txn, fn func(item *Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(itemPrefix)
	iter := txn.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		var item Item
		if err := iter.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &item)
		}); err != nil {
			return err
		}
		if err := fn(&item); err != nil {
			return err
		}
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("failed to release queue sequence", "error", err)
	}
	return s.db.Close()
}
