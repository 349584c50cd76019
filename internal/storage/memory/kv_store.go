package memory

import (
	"bytes"
	"context"
	"iter"
	"sort"
	"strings"
	"sync"

	"consumption-unit/internal/storage"
)

// KVStore is an in-memory implementation of storage.Store.
// Update holds the write lock for the whole callback, so write sets are
// serialized; staged writes live in an overlay until the callback succeeds.
type KVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewKVStore creates a new empty in-memory key-value store.
func NewKVStore() *KVStore {
	return &KVStore{
		data: make(map[string][]byte),
	}
}

// View runs fn against the current contents.
func (s *KVStore) View(ctx context.Context, fn func(storage.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return fn(&kvTxn{base: s.data, readOnly: true})
}

// Update runs fn and applies its writes only if fn returns nil.
func (s *KVStore) Update(ctx context.Context, fn func(storage.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	txn := &kvTxn{base: s.data, writes: make(map[string]pendingWrite)}
	if err := fn(txn); err != nil {
		return err
	}

	for k, w := range txn.writes {
		if w.deleted {
			delete(s.data, k)
			continue
		}
		s.data[k] = w.value
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *KVStore) Close() error {
	return nil
}

// Len returns the number of keys currently stored.
func (s *KVStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

type kvTxn struct {
	base     map[string][]byte
	writes   map[string]pendingWrite
	readOnly bool
}

func (t *kvTxn) Get(key []byte) ([]byte, error) {
	v, ok := t.lookup(string(key))
	if !ok {
		return nil, storage.ErrNotFound
	}
	// Return a copy
	return bytes.Clone(v), nil
}

func (t *kvTxn) Set(key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	// Store a copy to prevent external mutation
	t.writes[string(key)] = pendingWrite{value: bytes.Clone(value)}
	return nil
}

func (t *kvTxn) Delete(key []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	t.writes[string(key)] = pendingWrite{deleted: true}
	return nil
}

func (t *kvTxn) Scan(prefix, start []byte) iter.Seq2[storage.Entry, error] {
	return func(yield func(storage.Entry, error) bool) {
		p := string(prefix)
		lower := p
		if start != nil && string(start) > lower {
			lower = string(start)
		}

		seen := make(map[string]struct{})
		var keys []string
		collect := func(k string) {
			if !strings.HasPrefix(k, p) || k < lower {
				return
			}
			if _, dup := seen[k]; dup {
				return
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		for k := range t.base {
			collect(k)
		}
		for k := range t.writes {
			collect(k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			v, ok := t.lookup(k)
			if !ok {
				continue
			}
			if !yield(storage.Entry{Key: []byte(k), Value: bytes.Clone(v)}, nil) {
				return
			}
		}
	}
}

func (t *kvTxn) lookup(k string) ([]byte, bool) {
	if w, ok := t.writes[k]; ok {
		if w.deleted {
			return nil, false
		}
		return w.value, true
	}
	v, ok := t.base[k]
	return v, ok
}

var _ storage.Store = (*KVStore)(nil)
