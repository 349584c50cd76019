// Package consumption implements the consumption unit collection: minting,
// burning and tier updates of owner-indexed tokens, plus the read queries.
//
// Every operation runs in one storage transaction. Preconditions are checked
// before the first write, and a failed operation leaves no partial effect.
package consumption

import (
	"context"
	"errors"
	"fmt"

	"consumption-unit/internal/address"
	"consumption-unit/internal/domain"
	"consumption-unit/internal/state"
	"consumption-unit/internal/storage"
)

// Contract identity written at creation and on migration.
const (
	ContractName = "gemlabs.io:consumption-unit"
	Version      = "0.1.0"
)

// Event types.
const (
	EventInstantiate          = "consumption-unit::instantiate"
	EventMint                 = "consumption-unit::mint"
	EventBurn                 = "consumption-unit::burn"
	EventUpdateNftInfo        = "consumption-unit::update_nft_info"
	EventSelect               = "consumption-unit::select"
	EventUpdateCollectionInfo = "consumption-unit::update_collection_info"
	EventMigrate              = "consumption-unit::migrate"
)

// Contract is the handle every operation runs through. It owns the typed
// views over the store; construct it once per collection.
type Contract struct {
	store     storage.Store
	validator address.Validator

	config         state.Item[domain.Config]
	collectionInfo state.Item[domain.CollectionInfo]
	version        state.Item[domain.ContractVersion]
	numTokens      state.Counter
	tokens         state.IndexedMap[domain.ConsumptionUnitData]
	minter         state.OwnershipStore
	creator        state.OwnershipStore
}

// New returns a contract over store. Identities are checked with validator.
func New(store storage.Store, validator address.Validator) *Contract {
	return &Contract{
		store:          store,
		validator:      validator,
		config:         state.NewItem[domain.Config](state.NamespaceConfig),
		collectionInfo: state.NewItem[domain.CollectionInfo](state.NamespaceCollectionInfo),
		version:        state.NewItem[domain.ContractVersion](state.NamespaceContractInfo),
		numTokens:      state.NewCounter(state.NamespaceNumTokens),
		tokens:         state.NewIndexedMap[domain.ConsumptionUnitData](state.NamespaceTokens, state.NamespaceTokensByOwner),
		minter:         state.NewOwnershipStore(state.NamespaceMinter),
		creator:        state.NewOwnershipStore(state.NamespaceCreator),
	}
}

func (c *Contract) update(ctx context.Context, fn func(storage.Txn) error) error {
	return classify(c.store.Update(ctx, fn))
}

func (c *Contract) view(ctx context.Context, fn func(storage.Txn) error) error {
	return classify(c.store.View(ctx, fn))
}

func (c *Contract) validate(field, addr string) error {
	if err := c.validator.Validate(addr); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidInput, field, err)
	}
	return nil
}

// Instantiate creates the collection: version, config, collection info,
// then the minter and creator roles.
func (c *Contract) Instantiate(ctx context.Context, env Env, msg InstantiateMsg) (*Response, error) {
	if msg.WithdrawAddress != nil {
		return nil, fmt.Errorf("%w: withdraw_address is not supported", ErrInvalidInput)
	}
	ext := msg.CollectionInfoExtension
	if !ext.SettlementToken.IsValid() || !ext.NativeToken.IsValid() {
		return nil, fmt.Errorf("%w: settlement and native tokens are required", ErrInvalidInput)
	}
	if ext.SettlementToken.Kind == domain.DenomCw20 {
		if err := c.validate("settlement_token", ext.SettlementToken.Value); err != nil {
			return nil, err
		}
	}
	if ext.NativeToken.Kind == domain.DenomCw20 {
		if err := c.validate("native_token", ext.NativeToken.Value); err != nil {
			return nil, err
		}
	}
	if err := c.validate("price_oracle", ext.PriceOracle); err != nil {
		return nil, err
	}

	minter := env.Sender
	if msg.Minter != nil {
		minter = *msg.Minter
	}
	creator := env.Sender
	if msg.Creator != nil {
		creator = *msg.Creator
	}
	if err := c.validate("minter", minter); err != nil {
		return nil, err
	}
	if err := c.validate("creator", creator); err != nil {
		return nil, err
	}

	err := c.update(ctx, func(txn storage.Txn) error {
		ok, err := c.version.Exists(txn)
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyInstantiated
		}
		if err := c.version.Save(txn, domain.ContractVersion{Contract: ContractName, Version: Version}); err != nil {
			return err
		}
		cfg := domain.Config{
			SettlementToken: ext.SettlementToken,
			NativeToken:     ext.NativeToken,
			PriceOracle:     ext.PriceOracle,
		}
		if err := c.config.Save(txn, cfg); err != nil {
			return err
		}
		info := domain.CollectionInfo{Name: msg.Name, Symbol: msg.Symbol, UpdatedAt: env.Time.UTC()}
		if err := c.collectionInfo.Save(txn, info); err != nil {
			return err
		}
		if _, err := c.minter.Initialize(txn, minter); err != nil {
			return ownershipError(err)
		}
		if _, err := c.creator.Initialize(txn, creator); err != nil {
			return ownershipError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return newResponse(EventInstantiate).
		addEvent(EventInstantiate, "minter", minter, "creator", creator), nil
}

// Migrate rewrites the stored contract version. No other state changes.
func (c *Contract) Migrate(ctx context.Context) (*Response, error) {
	var from domain.ContractVersion
	err := c.update(ctx, func(txn storage.Txn) error {
		v, ok, err := c.version.MayLoad(txn)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotInstantiated
		}
		if v.Contract != ContractName {
			return fmt.Errorf("%w: cannot migrate from contract %q", ErrInvalidInput, v.Contract)
		}
		from = v
		return c.version.Save(txn, domain.ContractVersion{Contract: ContractName, Version: Version})
	})
	if err != nil {
		return nil, err
	}

	return newResponse(EventMigrate).
		addEvent(EventMigrate, "from_version", from.Version, "to_version", Version), nil
}

func ownershipError(err error) error {
	if errors.Is(err, state.ErrAlreadyInitialized) {
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	}
	return err
}
