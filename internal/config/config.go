// Package config loads the service configuration from YAML and environment.
package config

import (
	"time"
)

// Storage backends.
const (
	BackendMemory     = "memory"
	BackendBadger     = "badger"
	BackendPostgres   = "postgres"
	BackendClickhouse = "clickhouse"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Audit      AuditConfig      `yaml:"audit"`
	Address    AddressConfig    `yaml:"address"`
	Collection CollectionConfig `yaml:"collection"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"             env:"SERVER_ADDR"             env-default:":8080"`
	MetricsAddr     string        `yaml:"metrics_addr"     env:"SERVER_METRICS_ADDR"     env-default:":9090"`
	ReadTimeout     time.Duration `yaml:"read_timeout"     env:"SERVER_READ_TIMEOUT"     env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"    env-default:"30s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// StorageConfig selects the key-value backend holding the collection state.
type StorageConfig struct {
	Backend     string `yaml:"backend"      env:"STORAGE_BACKEND"      env-default:"memory"`
	BadgerDir   string `yaml:"badger_dir"   env:"STORAGE_BADGER_DIR"   env-default:"data/badger"`
	PostgresDSN string `yaml:"postgres_dsn" env:"STORAGE_POSTGRES_DSN"`
	MaxConns    int32  `yaml:"max_conns"    env:"STORAGE_MAX_CONNS"    env-default:"10"`
}

// AuditConfig selects where emitted events are recorded. The postgres
// backend reuses StorageConfig.PostgresDSN.
type AuditConfig struct {
	Backend       string `yaml:"backend"        env:"AUDIT_BACKEND"        env-default:"memory"`
	ClickhouseDSN string `yaml:"clickhouse_dsn" env:"AUDIT_CLICKHOUSE_DSN"`
}

// AddressConfig configures identity validation.
type AddressConfig struct {
	Format  string `yaml:"format"   env:"ADDRESS_FORMAT"   env-default:"loose"`
	OnCurve bool   `yaml:"on_curve" env:"ADDRESS_ON_CURVE" env-default:"false"`
}

// CollectionConfig holds the defaults used to create the collection at
// startup when AutoInstantiate is set. Denoms are written as
// "native:<denom>" or "cw20:<address>".
type CollectionConfig struct {
	AutoInstantiate bool   `yaml:"auto_instantiate" env:"COLLECTION_AUTO_INSTANTIATE" env-default:"false"`
	Sender          string `yaml:"sender"           env:"COLLECTION_SENDER"`
	Name            string `yaml:"name"             env:"COLLECTION_NAME"             env-default:"Consumption Units"`
	Symbol          string `yaml:"symbol"           env:"COLLECTION_SYMBOL"           env-default:"CU"`
	SettlementToken string `yaml:"settlement_token" env:"COLLECTION_SETTLEMENT_TOKEN"`
	NativeToken     string `yaml:"native_token"     env:"COLLECTION_NATIVE_TOKEN"`
	PriceOracle     string `yaml:"price_oracle"     env:"COLLECTION_PRICE_ORACLE"`
	Minter          string `yaml:"minter"           env:"COLLECTION_MINTER"`
	Creator         string `yaml:"creator"          env:"COLLECTION_CREATOR"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}
