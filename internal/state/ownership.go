package state

import (
	"errors"

	"consumption-unit/internal/domain"
	"consumption-unit/internal/storage"
)

// Ownership errors.
var (
	ErrAlreadyInitialized = errors.New("ownership already initialized")
	ErrNoOwner            = errors.New("ownership has no owner")
	ErrNotOwner           = errors.New("caller is not the owner")
)

// OwnershipStore holds the owner of a single role.
type OwnershipStore struct {
	item Item[domain.Ownership]
}

// NewOwnershipStore returns a role store bound to namespace.
func NewOwnershipStore(namespace string) OwnershipStore {
	return OwnershipStore{item: NewItem[domain.Ownership](namespace)}
}

// Initialize sets owner once.
func (s OwnershipStore) Initialize(txn storage.Txn, owner string) (domain.Ownership, error) {
	ok, err := s.item.Exists(txn)
	if err != nil {
		return domain.Ownership{}, err
	}
	if ok {
		return domain.Ownership{}, ErrAlreadyInitialized
	}
	o := domain.Ownership{Owner: &owner}
	if err := s.item.Save(txn, o); err != nil {
		return domain.Ownership{}, err
	}
	return o, nil
}

// Get returns the role record. An uninitialized role has no owner.
func (s OwnershipStore) Get(txn storage.Txn) (domain.Ownership, error) {
	o, _, err := s.item.MayLoad(txn)
	return o, err
}

// Assert succeeds iff addr is the current owner.
func (s OwnershipStore) Assert(txn storage.Txn, addr string) error {
	o, err := s.Get(txn)
	if err != nil {
		return err
	}
	if o.Owner == nil {
		return ErrNoOwner
	}
	if !o.IsOwner(addr) {
		return ErrNotOwner
	}
	return nil
}
