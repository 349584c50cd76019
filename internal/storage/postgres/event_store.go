package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"consumption-unit/internal/domain"
	"consumption-unit/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk adds multiple audit events atomically. Fails entire batch on any duplicate event_id.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO token_events (
			event_id, event_type, token_id, sender, attributes, event_index, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		attrs := e.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		_, err := tx.Exec(ctx, query,
			e.EventID,
			e.Type,
			e.TokenID,
			e.Sender,
			attrs,
			e.Index,
			e.Timestamp,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert token event in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByTokenID retrieves all events for a token, ordered by timestamp ASC, event_index ASC.
func (s *EventStore) GetByTokenID(ctx context.Context, tokenID string) ([]*domain.AuditEvent, error) {
	query := `
		SELECT event_id, event_type, token_id, sender, attributes, event_index, timestamp
		FROM token_events
		WHERE token_id = $1
		ORDER BY timestamp ASC, event_index ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get token events by token id: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents scans multiple rows into a slice of AuditEvent.
func scanEvents(rows pgx.Rows) ([]*domain.AuditEvent, error) {
	events := []*domain.AuditEvent{}

	for rows.Next() {
		var e domain.AuditEvent

		err := rows.Scan(
			&e.EventID,
			&e.Type,
			&e.TokenID,
			&e.Sender,
			&e.Attributes,
			&e.Index,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan token event row: %w", err)
		}

		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token event rows: %w", err)
	}

	return events, nil
}
