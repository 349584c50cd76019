package config

import (
	"errors"
	"fmt"
	"strings"

	"consumption-unit/internal/domain"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendBadger:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of memory, badger, postgres (got %q)", c.Storage.Backend)
	}
	if c.Storage.Backend == BackendBadger && c.Storage.BadgerDir == "" {
		return errors.New("storage.badger_dir is required for the badger backend")
	}

	switch c.Audit.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required for the postgres audit backend")
		}
	case BackendClickhouse:
		if c.Audit.ClickhouseDSN == "" {
			return errors.New("audit.clickhouse_dsn is required for the clickhouse audit backend")
		}
	default:
		return fmt.Errorf("audit.backend must be one of memory, postgres, clickhouse (got %q)", c.Audit.Backend)
	}

	if c.Address.Format != "loose" && c.Address.Format != "solana" {
		return fmt.Errorf("address.format must be loose or solana (got %q)", c.Address.Format)
	}

	if c.Collection.AutoInstantiate {
		if err := c.Collection.validate(); err != nil {
			return fmt.Errorf("collection: %w", err)
		}
	}

	return nil
}

func (c *CollectionConfig) validate() error {
	if c.Sender == "" {
		return errors.New("sender is required")
	}
	if c.PriceOracle == "" {
		return errors.New("price_oracle is required")
	}
	if _, err := ParseDenom(c.SettlementToken); err != nil {
		return fmt.Errorf("settlement_token: %w", err)
	}
	if _, err := ParseDenom(c.NativeToken); err != nil {
		return fmt.Errorf("native_token: %w", err)
	}
	return nil
}

// ParseDenom parses "native:<denom>" or "cw20:<address>".
func ParseDenom(s string) (domain.Denom, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return domain.Denom{}, fmt.Errorf("denom %q must be kind:value", s)
	}
	d := domain.Denom{Kind: domain.DenomKind(kind), Value: value}
	if !d.IsValid() {
		return domain.Denom{}, fmt.Errorf("invalid denom %q", s)
	}
	return d, nil
}
