package state

import (
	"errors"

	"consumption-unit/internal/storage"
)

// Item is a singleton record stored under its namespace key.
type Item[T any] struct {
	key []byte
}

// NewItem returns an item bound to namespace.
func NewItem[T any](namespace string) Item[T] {
	return Item[T]{key: []byte(namespace)}
}

// Load reads the item. Returns storage.ErrNotFound if it was never saved.
func (i Item[T]) Load(txn storage.Txn) (T, error) {
	var v T
	raw, err := txn.Get(i.key)
	if err != nil {
		return v, err
	}
	if err := decode(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

// MayLoad is Load with absence reported as ok=false instead of an error.
func (i Item[T]) MayLoad(txn storage.Txn) (T, bool, error) {
	v, err := i.Load(txn)
	if errors.Is(err, storage.ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Save writes the item, replacing any previous value.
func (i Item[T]) Save(txn storage.Txn, v T) error {
	raw, err := encode(v)
	if err != nil {
		return err
	}
	return txn.Set(i.key, raw)
}

// Exists reports whether the item has been saved.
func (i Item[T]) Exists(txn storage.Txn) (bool, error) {
	_, err := txn.Get(i.key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
