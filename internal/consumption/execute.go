package consumption

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"consumption-unit/internal/domain"
	"consumption-unit/internal/state"
	"consumption-unit/internal/storage"
)

// Mint creates a token owned by msg.Owner. Only the minter may mint.
// The stored state is always Reflected and both timestamps are set to the
// invocation time, whatever the caller sent.
func (c *Contract) Mint(ctx context.Context, env Env, msg MintMsg) (*Response, error) {
	if msg.TokenID == "" {
		return nil, fmt.Errorf("%w: empty token_id", ErrInvalidInput)
	}

	err := c.update(ctx, func(txn storage.Txn) error {
		if err := c.assertMinter(txn, env.Sender); err != nil {
			return err
		}
		if err := c.validate("owner", msg.Owner); err != nil {
			return err
		}

		now := env.Time.UTC()
		ext := msg.Extension.Clone()
		ext.State = domain.StateReflected
		ext.CreatedAt = now
		ext.UpdatedAt = now

		if _, err := c.tokens.Insert(txn, msg.TokenID, msg.Owner, ext); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("%w: token %q already claimed", ErrAlreadyExists, msg.TokenID)
			}
			return err
		}
		_, err := c.numTokens.Increment(txn)
		return err
	})
	if err != nil {
		return nil, err
	}

	return newResponse(EventMint).
		addEvent(EventMint, "token_id", msg.TokenID, "owner", msg.Owner), nil
}

// Burn removes a token. Only its owner may burn it.
func (c *Contract) Burn(ctx context.Context, env Env, tokenID string) (*Response, error) {
	err := c.update(ctx, func(txn storage.Txn) error {
		rec, err := c.loadToken(txn, tokenID)
		if err != nil {
			return err
		}
		if rec.Owner != env.Sender {
			return ErrNotOwner
		}
		if _, err := c.tokens.Remove(txn, tokenID); err != nil {
			return err
		}
		_, err = c.numTokens.Decrement(txn)
		return err
	})
	if err != nil {
		return nil, err
	}

	return newResponse(EventBurn).
		addEvent(EventBurn, "sender", env.Sender, "token_id", tokenID), nil
}

// UpdateTier moves a token to another commitment tier. Only the owner may do
// so, and only before the token is selected. A reflected token becomes
// nominated. The response carries a reprice request for the pricing service.
func (c *Contract) UpdateTier(ctx context.Context, env Env, tokenID string, tier uint16) (*Response, error) {
	err := c.update(ctx, func(txn storage.Txn) error {
		rec, err := c.loadToken(txn, tokenID)
		if err != nil {
			return err
		}
		if rec.Owner != env.Sender {
			return ErrNotOwner
		}
		if rec.Extension.State == domain.StateSelected {
			return fmt.Errorf("%w: token %q is selected", ErrWrongState, tokenID)
		}
		_, err = c.tokens.Update(txn, tokenID, func(old state.NftInfo[domain.ConsumptionUnitData]) (domain.ConsumptionUnitData, error) {
			return old.Extension.UpdateTier(tier, env.Time.UTC()), nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := newResponse(EventUpdateNftInfo).
		addEvent(EventUpdateNftInfo, "token_id", tokenID, "new_commitment_pool_id", strconv.FormatUint(uint64(tier), 10))
	resp.Reprice = &RepriceRequest{TokenID: tokenID, Tier: tier}
	return resp, nil
}

// Select marks a token as selected, freezing its tier. Only the minter,
// acting for the external selection process, may call it.
func (c *Contract) Select(ctx context.Context, env Env, tokenID string) (*Response, error) {
	err := c.update(ctx, func(txn storage.Txn) error {
		if err := c.assertMinter(txn, env.Sender); err != nil {
			return err
		}
		_, err := c.tokens.Update(txn, tokenID, func(old state.NftInfo[domain.ConsumptionUnitData]) (domain.ConsumptionUnitData, error) {
			if old.Extension.State == domain.StateSelected {
				return domain.ConsumptionUnitData{}, fmt.Errorf("%w: token %q is already selected", ErrWrongState, tokenID)
			}
			ext := old.Extension.Clone()
			ext.State = domain.StateSelected
			ext.UpdatedAt = env.Time.UTC()
			return ext, nil
		})
		return tokenError(tokenID, err)
	})
	if err != nil {
		return nil, err
	}

	return newResponse(EventSelect).
		addEvent(EventSelect, "token_id", tokenID), nil
}

// UpdateCollectionInfo changes the collection name and symbol. Creator only.
func (c *Contract) UpdateCollectionInfo(ctx context.Context, env Env, msg UpdateCollectionInfoMsg) (*Response, error) {
	if msg.Name == nil && msg.Symbol == nil {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if (msg.Name != nil && *msg.Name == "") || (msg.Symbol != nil && *msg.Symbol == "") {
		return nil, fmt.Errorf("%w: name and symbol must not be empty", ErrInvalidInput)
	}

	var info domain.CollectionInfo
	err := c.update(ctx, func(txn storage.Txn) error {
		if err := c.assertCreator(txn, env.Sender); err != nil {
			return err
		}
		cur, ok, err := c.collectionInfo.MayLoad(txn)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotInstantiated
		}
		if msg.Name != nil {
			cur.Name = *msg.Name
		}
		if msg.Symbol != nil {
			cur.Symbol = *msg.Symbol
		}
		cur.UpdatedAt = env.Time.UTC()
		info = cur
		return c.collectionInfo.Save(txn, cur)
	})
	if err != nil {
		return nil, err
	}

	return newResponse(EventUpdateCollectionInfo).
		addEvent(EventUpdateCollectionInfo, "name", info.Name, "symbol", info.Symbol), nil
}

func (c *Contract) assertMinter(txn storage.Txn, sender string) error {
	err := c.minter.Assert(txn, sender)
	if errors.Is(err, state.ErrNotOwner) || errors.Is(err, state.ErrNoOwner) {
		return ErrNotMinter
	}
	return err
}

func (c *Contract) assertCreator(txn storage.Txn, sender string) error {
	err := c.creator.Assert(txn, sender)
	if errors.Is(err, state.ErrNotOwner) || errors.Is(err, state.ErrNoOwner) {
		return ErrNotCreator
	}
	return err
}

func (c *Contract) loadToken(txn storage.Txn, tokenID string) (state.NftInfo[domain.ConsumptionUnitData], error) {
	rec, err := c.tokens.Load(txn, tokenID)
	return rec, tokenError(tokenID, err)
}

func tokenError(tokenID string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: token %q", ErrNotFound, tokenID)
	}
	return err
}
