package clickhouse

import (
	"context"
	"fmt"

	"consumption-unit/internal/domain"
	"consumption-unit/internal/storage"
)

// EventStore implements storage.EventStore using ClickHouse.
type EventStore struct {
	conn *Conn
}

// NewEventStore creates a new EventStore.
func NewEventStore(conn *Conn) *EventStore {
	return &EventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk adds multiple events. Fails entire batch on duplicate event_id.
func (s *EventStore) InsertBulk(ctx context.Context, events []*domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	ids := make([]string, 0, len(events))
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
		ids = append(ids, e.EventID)
	}

	// Check for duplicates against existing DB rows
	exists, err := s.anyExists(ctx, ids)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO token_events (
			event_id, event_type, token_id, sender, attributes, event_index, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		attrs := e.Attributes
		if attrs == nil {
			attrs = map[string]string{}
		}
		err = batch.Append(
			e.EventID, e.Type, e.TokenID, e.Sender,
			attrs, uint32(e.Index), e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTokenID retrieves all events for a token, ordered by timestamp ASC, event_index ASC.
func (s *EventStore) GetByTokenID(ctx context.Context, tokenID string) ([]*domain.AuditEvent, error) {
	query := `
		SELECT event_id, event_type, token_id, sender, attributes, event_index, timestamp
		FROM token_events FINAL
		WHERE token_id = ?
		ORDER BY timestamp ASC, event_index ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, tokenID)
	if err != nil {
		return nil, fmt.Errorf("query by token id: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// anyExists reports whether any of the event ids is already stored.
func (s *EventStore) anyExists(ctx context.Context, ids []string) (bool, error) {
	query := `
		SELECT count(*) FROM token_events
		WHERE event_id IN (?)
	`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, ids).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used by the scanners.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanEvents scans multiple rows into a slice of AuditEvent.
func scanEvents(rows chRows) ([]*domain.AuditEvent, error) {
	events := []*domain.AuditEvent{}

	for rows.Next() {
		var (
			e     domain.AuditEvent
			index uint32
		)
		if err := rows.Scan(
			&e.EventID, &e.Type, &e.TokenID, &e.Sender,
			&e.Attributes, &index, &e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan token event row: %w", err)
		}
		e.Index = int(index)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token event rows: %w", err)
	}

	return events, nil
}
