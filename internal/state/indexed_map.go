package state

import (
	"errors"
	"fmt"
	"iter"

	"consumption-unit/internal/storage"
)

// NftInfo is a token record: its owner and a deployment-specific extension.
type NftInfo[E any] struct {
	Owner     string `json:"owner"     msgpack:"owner"`
	Extension E      `json:"extension" msgpack:"extension"`
}

// IndexedMap stores token records keyed by id together with an
// (owner, id) index. Every write keeps both in the same transaction.
type IndexedMap[E any] struct {
	namespace      string
	indexNamespace string
}

// NewIndexedMap returns a map over the given primary and index namespaces.
func NewIndexedMap[E any](namespace, indexNamespace string) IndexedMap[E] {
	return IndexedMap[E]{namespace: namespace, indexNamespace: indexNamespace}
}

// Load returns the record for id or storage.ErrNotFound.
func (m IndexedMap[E]) Load(txn storage.Txn, id string) (NftInfo[E], error) {
	var rec NftInfo[E]
	raw, err := txn.Get(mapKey(m.namespace, id))
	if err != nil {
		return rec, err
	}
	if err := decode(raw, &rec); err != nil {
		return rec, fmt.Errorf("load token %q: %w", id, err)
	}
	return rec, nil
}

// Has reports whether id is present.
func (m IndexedMap[E]) Has(txn storage.Txn, id string) (bool, error) {
	_, err := txn.Get(mapKey(m.namespace, id))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Insert creates the record and its index entry.
// Returns storage.ErrDuplicateKey if id is present.
func (m IndexedMap[E]) Insert(txn storage.Txn, id, owner string, ext E) (NftInfo[E], error) {
	ok, err := m.Has(txn, id)
	if err != nil {
		return NftInfo[E]{}, err
	}
	if ok {
		return NftInfo[E]{}, storage.ErrDuplicateKey
	}
	rec := NftInfo[E]{Owner: owner, Extension: ext}
	if err := m.save(txn, id, nil, rec); err != nil {
		return NftInfo[E]{}, err
	}
	return rec, nil
}

// Update applies fn to the stored extension and writes the result back.
// The owner is not changed. If fn fails nothing is written.
func (m IndexedMap[E]) Update(txn storage.Txn, id string, fn func(NftInfo[E]) (E, error)) (NftInfo[E], error) {
	old, err := m.Load(txn, id)
	if err != nil {
		return NftInfo[E]{}, err
	}
	ext, err := fn(old)
	if err != nil {
		return NftInfo[E]{}, err
	}
	rec := NftInfo[E]{Owner: old.Owner, Extension: ext}
	if err := m.save(txn, id, &old, rec); err != nil {
		return NftInfo[E]{}, err
	}
	return rec, nil
}

// Remove deletes the record and its index entry and returns the old record.
func (m IndexedMap[E]) Remove(txn storage.Txn, id string) (NftInfo[E], error) {
	old, err := m.Load(txn, id)
	if err != nil {
		return NftInfo[E]{}, err
	}
	if err := txn.Delete(mapKey(m.indexNamespace, old.Owner, id)); err != nil {
		return NftInfo[E]{}, err
	}
	if err := txn.Delete(mapKey(m.namespace, id)); err != nil {
		return NftInfo[E]{}, err
	}
	return old, nil
}

// RangeByOwner yields the ids owned by owner in ascending order, strictly
// after the cursor, at most ClampLimit(limit) of them.
func (m IndexedMap[E]) RangeByOwner(txn storage.Txn, owner, after string, limit uint32) iter.Seq2[string, error] {
	prefix := append(mapPrefix(m.indexNamespace), lengthPrefixed([]byte(owner))...)
	return rangeIDs(txn, prefix, after, ClampLimit(limit))
}

// RangeAll yields every id in ascending order, strictly after the cursor,
// at most ClampLimit(limit) of them.
func (m IndexedMap[E]) RangeAll(txn storage.Txn, after string, limit uint32) iter.Seq2[string, error] {
	return rangeIDs(txn, mapPrefix(m.namespace), after, ClampLimit(limit))
}

// save writes rec and moves the index entry if the owner changed.
func (m IndexedMap[E]) save(txn storage.Txn, id string, old *NftInfo[E], rec NftInfo[E]) error {
	raw, err := encode(rec)
	if err != nil {
		return err
	}
	if old != nil && old.Owner != rec.Owner {
		if err := txn.Delete(mapKey(m.indexNamespace, old.Owner, id)); err != nil {
			return err
		}
	}
	if old == nil || old.Owner != rec.Owner {
		if err := txn.Set(mapKey(m.indexNamespace, rec.Owner, id), []byte(id)); err != nil {
			return err
		}
	}
	return txn.Set(mapKey(m.namespace, id), raw)
}

func rangeIDs(txn storage.Txn, prefix []byte, after string, limit int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		n := 0
		for e, err := range txn.Scan(prefix, startAfter(prefix, after)) {
			if err != nil {
				yield("", err)
				return
			}
			if !yield(string(e.Key[len(prefix):]), nil) {
				return
			}
			n++
			if n == limit {
				return
			}
		}
	}
}

// Collect drains a range into a slice.
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	ids := []string{}
	for id, err := range seq {
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
