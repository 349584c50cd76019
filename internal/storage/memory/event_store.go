package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"consumption-unit/internal/domain"
	"consumption-unit/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu      sync.RWMutex
	byID    map[string]*domain.AuditEvent   // keyed by event_id
	byToken map[string][]*domain.AuditEvent // keyed by token_id
}

// NewEventStore creates a new in-memory audit event store.
func NewEventStore() *EventStore {
	return &EventStore{
		byID:    make(map[string]*domain.AuditEvent),
		byToken: make(map[string][]*domain.AuditEvent),
	}
}

// InsertBulk appends events. Fails entire batch on duplicate event_id.
func (s *EventStore) InsertBulk(_ context.Context, events []*domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicates first (atomic semantics)
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.byID[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	for _, e := range events {
		c := copyEvent(e)
		s.byID[c.EventID] = c
		s.byToken[c.TokenID] = append(s.byToken[c.TokenID], c)
	}
	return nil
}

// GetByTokenID retrieves all events for a token, ordered by timestamp ASC then index ASC.
func (s *EventStore) GetByTokenID(_ context.Context, tokenID string) ([]*domain.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.byToken[tokenID]
	result := make([]*domain.AuditEvent, 0, len(src))
	for _, e := range src {
		result = append(result, copyEvent(e))
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Index < result[j].Index
	})
	return result, nil
}

func copyEvent(e *domain.AuditEvent) *domain.AuditEvent {
	c := *e
	c.Attributes = maps.Clone(e.Attributes)
	return &c
}

var _ storage.EventStore = (*EventStore)(nil)
