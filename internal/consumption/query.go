package consumption

import (
	"context"

	"consumption-unit/internal/domain"
	"consumption-unit/internal/state"
	"consumption-unit/internal/storage"
)

// OwnerOf returns the owner of a token.
func (c *Contract) OwnerOf(ctx context.Context, tokenID string) (string, error) {
	var owner string
	err := c.view(ctx, func(txn storage.Txn) error {
		rec, err := c.loadToken(txn, tokenID)
		owner = rec.Owner
		return err
	})
	return owner, err
}

// NftInfo returns the extension payload of a token.
func (c *Contract) NftInfo(ctx context.Context, tokenID string) (domain.ConsumptionUnitData, error) {
	var ext domain.ConsumptionUnitData
	err := c.view(ctx, func(txn storage.Txn) error {
		rec, err := c.loadToken(txn, tokenID)
		ext = rec.Extension
		return err
	})
	return ext, err
}

// NumTokens returns the number of live tokens.
func (c *Contract) NumTokens(ctx context.Context) (uint64, error) {
	var n uint64
	err := c.view(ctx, func(txn storage.Txn) error {
		var err error
		n, err = c.numTokens.Get(txn)
		return err
	})
	return n, err
}

// Tokens returns a page of the ids owned by owner, ascending, strictly after
// startAfter. An empty page means there are no more.
func (c *Contract) Tokens(ctx context.Context, owner, startAfter string, limit uint32) ([]string, error) {
	if err := c.validate("owner", owner); err != nil {
		return nil, err
	}
	var ids []string
	err := c.view(ctx, func(txn storage.Txn) error {
		var err error
		ids, err = state.Collect(c.tokens.RangeByOwner(txn, owner, startAfter, limit))
		return err
	})
	return ids, err
}

// AllTokens returns a page of all ids, ascending, strictly after startAfter.
func (c *Contract) AllTokens(ctx context.Context, startAfter string, limit uint32) ([]string, error) {
	var ids []string
	err := c.view(ctx, func(txn storage.Txn) error {
		var err error
		ids, err = state.Collect(c.tokens.RangeAll(txn, startAfter, limit))
		return err
	})
	return ids, err
}

// MinterOwnership returns the minter role record.
func (c *Contract) MinterOwnership(ctx context.Context) (domain.Ownership, error) {
	return c.ownership(ctx, c.minter)
}

// CreatorOwnership returns the creator role record.
func (c *Contract) CreatorOwnership(ctx context.Context) (domain.Ownership, error) {
	return c.ownership(ctx, c.creator)
}

func (c *Contract) ownership(ctx context.Context, s state.OwnershipStore) (domain.Ownership, error) {
	var o domain.Ownership
	err := c.view(ctx, func(txn storage.Txn) error {
		var err error
		o, err = s.Get(txn)
		return err
	})
	return o, err
}

// Config returns the collection configuration.
func (c *Contract) Config(ctx context.Context) (domain.Config, error) {
	return loadItem(ctx, c, c.config)
}

// CollectionInfo returns the collection metadata.
func (c *Contract) CollectionInfo(ctx context.Context) (domain.CollectionInfo, error) {
	return loadItem(ctx, c, c.collectionInfo)
}

// ContractVersion returns the stored contract name and version.
func (c *Contract) ContractVersion(ctx context.Context) (domain.ContractVersion, error) {
	return loadItem(ctx, c, c.version)
}

func loadItem[T any](ctx context.Context, c *Contract, item state.Item[T]) (T, error) {
	var v T
	err := c.view(ctx, func(txn storage.Txn) error {
		var ok bool
		var err error
		v, ok, err = item.MayLoad(txn)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotInstantiated
		}
		return nil
	})
	return v, err
}
