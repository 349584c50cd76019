package storage

import (
	"context"
	"iter"

	"consumption-unit/internal/domain"
)

// Entry is a key/value pair yielded by Txn.Scan.
type Entry struct {
	Key   []byte
	Value []byte
}

// Txn is a view of the key space inside one Store.View or Store.Update call.
// Writes become visible to later reads in the same Txn and are applied to
// the store only when the enclosing Update callback returns nil.
type Txn interface {
	// Get returns the value stored under key. Returns ErrNotFound if absent.
	Get(key []byte) ([]byte, error)

	// Set stores value under key. Returns ErrReadOnly inside View.
	Set(key, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	// Returns ErrReadOnly inside View.
	Delete(key []byte) error

	// Scan yields entries whose key has the given prefix and is >= start,
	// ordered by key bytes ascending. A nil start scans the whole prefix.
	// The caller must not write to the Txn while a scan is in progress.
	Scan(prefix, start []byte) iter.Seq2[Entry, error]
}

// Store is a transactional, ordered key-value store.
type Store interface {
	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(Txn) error) error

	// Update runs fn in a read-write transaction. Every write made by fn is
	// applied atomically if fn returns nil and discarded otherwise.
	Update(ctx context.Context, fn func(Txn) error) error

	// Close releases the underlying engine.
	Close() error
}

// EventStore provides access to token_events storage (the audit log).
type EventStore interface {
	// InsertBulk appends events. Fails entire batch on duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.AuditEvent) error

	// GetByTokenID retrieves all events for a token, ordered by timestamp ASC then index ASC.
	GetByTokenID(ctx context.Context, tokenID string) ([]*domain.AuditEvent, error)
}
