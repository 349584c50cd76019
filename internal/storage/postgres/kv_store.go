package postgres

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"consumption-unit/internal/storage"
)

const (
	kvTable       = "kv_entries"
	scanBatchSize = 256

	// kvWriteLockID is the advisory lock key held by every write transaction.
	kvWriteLockID int64 = 0x63755f6b76 // "cu_kv"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// KVStore implements storage.Store on the kv_entries table.
// Write transactions take a transaction-scoped advisory lock, so write sets
// are serialized across every process sharing the database. Reads run in a
// read-only repeatable-read transaction.
type KVStore struct {
	pool *Pool
}

// NewKVStore creates a new KVStore.
func NewKVStore(pool *Pool) *KVStore {
	return &KVStore{pool: pool}
}

// Compile-time interface check.
var _ storage.Store = (*KVStore)(nil)

// View runs fn in a read-only snapshot.
func (s *KVStore) View(ctx context.Context, fn func(storage.Txn) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTxn{ctx: ctx, tx: tx, readOnly: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit read tx: %w", err)
	}
	return nil
}

// Update runs fn and commits its writes only if fn returns nil.
func (s *KVStore) Update(ctx context.Context, fn func(storage.Txn) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Every statement after the lock sees all previously committed writes.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", kvWriteLockID); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}

	if err := fn(&pgTxn{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close is a no-op; the pool is owned by the caller.
func (s *KVStore) Close() error {
	return nil
}

type pgTxn struct {
	ctx      context.Context
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTxn) Get(key []byte) ([]byte, error) {
	query, args, err := psql.Select("value").
		From(kvTable).
		Where(sq.Expr("key = ?", key)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}

	var value []byte
	if err := t.tx.QueryRow(t.ctx, query, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get key: %w", err)
	}
	return value, nil
}

func (t *pgTxn) Set(key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	query, args, err := psql.Insert(kvTable).
		Columns("key", "value").
		Values(key, value).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("build set query: %w", err)
	}
	if _, err := t.tx.Exec(t.ctx, query, args...); err != nil {
		return fmt.Errorf("set key: %w", err)
	}
	return nil
}

func (t *pgTxn) Delete(key []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	query, args, err := psql.Delete(kvTable).
		Where(sq.Expr("key = ?", key)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete query: %w", err)
	}
	if _, err := t.tx.Exec(t.ctx, query, args...); err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	return nil
}

// Scan reads the range in batches. Each batch is fully read before any entry
// is yielded, so the caller may issue other statements while iterating.
func (t *pgTxn) Scan(prefix, start []byte) iter.Seq2[storage.Entry, error] {
	return func(yield func(storage.Entry, error) bool) {
		lower := prefix
		if bytes.Compare(start, prefix) > 0 {
			lower = start
		}
		if lower == nil {
			// nil would be sent as NULL
			lower = []byte{}
		}
		upper := storage.PrefixEnd(prefix)

		for {
			batch, err := t.scanBatch(lower, upper)
			if err != nil {
				yield(storage.Entry{}, err)
				return
			}
			for _, e := range batch {
				if !yield(e, nil) {
					return
				}
			}
			if len(batch) < scanBatchSize {
				return
			}
			last := batch[len(batch)-1].Key
			lower = append(bytes.Clone(last), 0x00)
		}
	}
}

func (t *pgTxn) scanBatch(lower, upper []byte) ([]storage.Entry, error) {
	q := psql.Select("key", "value").
		From(kvTable).
		Where(sq.Expr("key >= ?", lower)).
		OrderBy("key ASC").
		Limit(scanBatchSize)
	if upper != nil {
		q = q.Where(sq.Expr("key < ?", upper))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build scan query: %w", err)
	}

	rows, err := t.tx.Query(t.ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scan keys: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// scanEntries scans multiple rows into a slice of Entry.
func scanEntries(rows pgx.Rows) ([]storage.Entry, error) {
	entries := make([]storage.Entry, 0, scanBatchSize)

	for rows.Next() {
		var e storage.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("scan kv row: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kv rows: %w", err)
	}

	return entries, nil
}
