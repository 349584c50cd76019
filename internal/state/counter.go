package state

import (
	"errors"

	"consumption-unit/internal/storage"
)

// ErrCounterUnderflow is returned when a counter at zero is decremented.
var ErrCounterUnderflow = errors.New("counter underflow")

// Counter is a uint64 singleton. An absent counter reads as zero.
type Counter struct {
	item Item[uint64]
}

// NewCounter returns a counter bound to namespace.
func NewCounter(namespace string) Counter {
	return Counter{item: NewItem[uint64](namespace)}
}

// Get returns the current value.
func (c Counter) Get(txn storage.Txn) (uint64, error) {
	n, _, err := c.item.MayLoad(txn)
	return n, err
}

// Increment adds one and returns the new value.
func (c Counter) Increment(txn storage.Txn) (uint64, error) {
	n, err := c.Get(txn)
	if err != nil {
		return 0, err
	}
	n++
	return n, c.item.Save(txn, n)
}

// Decrement subtracts one and returns the new value.
func (c Counter) Decrement(txn storage.Txn) (uint64, error) {
	n, err := c.Get(txn)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrCounterUnderflow
	}
	n--
	return n, c.item.Save(txn, n)
}
