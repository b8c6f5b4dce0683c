package queue

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore keeps queue items in the queue_items table.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const itemColumns = `url, status, seq, last_error, enqueued_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var status string
	var seq int64
	if err := row.Scan(&it.URL, &status, &seq, &it.LastError, &it.EnqueuedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.Status = Status(status)
	it.Seq = uint64(seq)
	return &it, nil
}

func (r *PostgresStore) Enqueue(ctx context.Context, urls []string) ([]Item, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO queue_items (url, status, seq, last_error, enqueued_at, updated_at)
		VALUES ($1, 'pending', nextval('queue_items_seq'), '', NOW(), NOW())
		ON CONFLICT (url) DO UPDATE SET status = 'pending', seq = EXCLUDED.seq, last_error = '', enqueued_at = EXCLUDED.enqueued_at, updated_at = EXCLUDED.updated_at
		WHERE queue_items.status IN ('completed', 'failed')
		RETURNING ` + itemColumns

	var created []Item
	for _, u := range urls {
		item, err := scanItem(tx.QueryRowContext(ctx, query, u))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		created = append(created, *item)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PostgresStore) ListPending(ctx context.Context) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items WHERE status = 'pending' ORDER BY seq`
	return r.list(ctx, query)
}

func (r *PostgresStore) Snapshot(ctx context.Context) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM queue_items ORDER BY seq`
	return r.list(ctx, query)
}

func (r *PostgresStore) list(ctx context.Context, query string) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (r *PostgresStore) Claim(ctx context.Context) (*Item, error) {
	query := `UPDATE queue_items SET status = 'processing', updated_at = NOW()
		WHERE url = (SELECT url FROM queue_items WHERE status = 'pending' ORDER BY seq LIMIT 1 FOR UPDATE SKIP LOCKED)
		RETURNING ` + itemColumns

	item, err := scanItem(r.db.QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *PostgresStore) Update(ctx context.Context, url string, fn UpdateFunc) (*Item, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + itemColumns + ` FROM queue_items WHERE url = $1 FOR UPDATE`
	item, err := scanItem(tx.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(url)
	}
	if err != nil {
		return nil, err
	}

	changed, err := fn(item)
	if err != nil {
		return nil, err
	}
	if !changed {
		return item, nil
	}

	update := `UPDATE queue_items SET status = $2, last_error = $3, updated_at = NOW() WHERE url = $1 RETURNING updated_at`
	if err := tx.QueryRowContext(ctx, update, url, string(item.Status), item.LastError).Scan(&item.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *PostgresStore) Clear(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM queue_items WHERE status <> 'processing'`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresStore) RecoverInFlight(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE queue_items SET status = 'pending', updated_at = NOW() WHERE status = 'processing'`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close is a no-op; the *sql.DB is owned by the caller.
func (r *PostgresStore) Close() error {
	return nil
}
