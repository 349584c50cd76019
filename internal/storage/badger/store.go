// Package badger implements storage.Store on an embedded Badger database.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"consumption-unit/internal/storage"
)

const (
	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
	gcLSMThreshold = 1024 * 1024 * 8
	gcLogThreshold = 1024 * 1024 * 32
)

// Store wraps a Badger database.
// Update calls are serialized so concurrent write sets never conflict.
type Store struct {
	db      *badgerdb.DB
	logger  *slog.Logger
	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}
}

// Open opens the database at path. An empty path opens an in-memory database.
// A background value-log GC runs until Close for on-disk databases.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "badger")

	opts := badgerdb.DefaultOptions(path).WithLogger(slogAdapter{logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}

	gcCtx, cancel := context.WithCancel(ctx)
	s := &Store{
		db:     db,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if path == "" {
		close(s.done)
	} else {
		go s.runGC(gcCtx)
	}
	return s, nil
}

func (s *Store) runGC(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		lsm, vlog := s.db.Size()
		s.logger.Debug("badger size", "lsm", lsm, "vlog", vlog)
		if lsm > gcLSMThreshold || vlog > gcLogThreshold {
			err := s.db.RunValueLogGC(gcDiscardRatio)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				s.logger.Warn("badger value log gc failed", "error", err)
			}
		}
	}
}

// Close stops the GC loop and closes the database.
func (s *Store) Close() error {
	s.cancel()
	<-s.done
	return s.db.Close()
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(storage.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badgerdb.Txn) error {
		return fn(&badgerTxn{txn: txn, readOnly: true})
	})
}

// Update runs fn in a read-write transaction committed only if fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(storage.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.Update(func(txn *badgerdb.Txn) error {
		return fn(&badgerTxn{txn: txn})
	})
}

type badgerTxn struct {
	txn      *badgerdb.Txn
	readOnly bool
}

func (t *badgerTxn) Get(key []byte) ([]byte, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(key, value []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	// Badger keeps the slices until commit.
	return t.txn.Set(bytes.Clone(key), bytes.Clone(value))
}

func (t *badgerTxn) Delete(key []byte) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	return t.txn.Delete(bytes.Clone(key))
}

func (t *badgerTxn) Scan(prefix, start []byte) iter.Seq2[storage.Entry, error] {
	return func(yield func(storage.Entry, error) bool) {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := t.txn.NewIterator(opts)
		defer it.Close()

		seek := prefix
		if bytes.Compare(start, prefix) > 0 {
			seek = start
		}
		for it.Seek(seek); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				yield(storage.Entry{}, err)
				return
			}
			if !yield(storage.Entry{Key: item.KeyCopy(nil), Value: val}, nil) {
				return
			}
		}
	}
}

// slogAdapter routes Badger's internal logging through slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)
