package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"consumption-unit/internal/domain"
)

func writeYAML(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	return path
}

const validYAML = `
server:
  addr: "127.0.0.1:8081"
  metrics_addr: "127.0.0.1:9091"
  shutdown_timeout: "5s"

storage:
  backend: "badger"
  badger_dir: "/var/lib/cu"

audit:
  backend: "clickhouse"
  clickhouse_dsn: "clickhouse://localhost:9000/cu"

address:
  format: "solana"
  on_curve: true

collection:
  auto_instantiate: true
  sender: "admin"
  name: "Units"
  symbol: "U"
  settlement_token: "native:uusdc"
  native_token: "native:untrn"
  price_oracle: "oracle"

log:
  level: "debug"
  format: "text"
`

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 10s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.Backend != BackendMemory {
		t.Errorf("Storage.Backend = %q, want memory", cfg.Storage.Backend)
	}
	if cfg.Audit.Backend != BackendMemory {
		t.Errorf("Audit.Backend = %q, want memory", cfg.Audit.Backend)
	}
	if cfg.Address.Format != "loose" {
		t.Errorf("Address.Format = %q, want loose", cfg.Address.Format)
	}
	if cfg.Collection.AutoInstantiate {
		t.Error("Collection.AutoInstantiate should default to false")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:8081" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Storage.Backend != BackendBadger || cfg.Storage.BadgerDir != "/var/lib/cu" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Audit.ClickhouseDSN != "clickhouse://localhost:9000/cu" {
		t.Errorf("Audit.ClickhouseDSN = %q", cfg.Audit.ClickhouseDSN)
	}
	if cfg.Address.Format != "solana" || !cfg.Address.OnCurve {
		t.Errorf("Address = %+v", cfg.Address)
	}
	if !cfg.Collection.AutoInstantiate || cfg.Collection.Sender != "admin" {
		t.Errorf("Collection = %+v", cfg.Collection)
	}
	// Unset in YAML, default applies
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("Server.ReadTimeout = %v, want 10s", cfg.Server.ReadTimeout)
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), validYAML)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("SERVER_ADDR", ":7000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Server.Addr != ":7000" {
		t.Errorf("Server.Addr = %q, want :7000", cfg.Server.Addr)
	}
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_InvalidFails(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("STORAGE_BACKEND", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("error = %v, want mention of postgres_dsn", err)
	}
}

func validConfig() Config {
	return Config{
		Storage: StorageConfig{Backend: BackendMemory, BadgerDir: "data"},
		Audit:   AuditConfig{Backend: BackendMemory},
		Address: AddressConfig{Format: "loose"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "storage.postgres_dsn"},
		{"postgres with dsn", func(c *Config) {
			c.Storage.Backend = BackendPostgres
			c.Storage.PostgresDSN = "postgres://localhost/cu"
		}, ""},
		{"badger without dir", func(c *Config) {
			c.Storage.Backend = BackendBadger
			c.Storage.BadgerDir = ""
		}, "badger_dir"},
		{"unknown audit", func(c *Config) { c.Audit.Backend = "kafka" }, "audit.backend"},
		{"postgres audit without dsn", func(c *Config) { c.Audit.Backend = BackendPostgres }, "postgres audit"},
		{"clickhouse audit without dsn", func(c *Config) { c.Audit.Backend = BackendClickhouse }, "clickhouse_dsn"},
		{"unknown address format", func(c *Config) { c.Address.Format = "bech32" }, "address.format"},
		{"auto instantiate without sender", func(c *Config) {
			c.Collection = CollectionConfig{AutoInstantiate: true, PriceOracle: "o",
				SettlementToken: "native:a", NativeToken: "native:b"}
		}, "sender"},
		{"auto instantiate bad denom", func(c *Config) {
			c.Collection = CollectionConfig{AutoInstantiate: true, Sender: "s", PriceOracle: "o",
				SettlementToken: "uusdc", NativeToken: "native:b"}
		}, "settlement_token"},
		{"auto instantiate valid", func(c *Config) {
			c.Collection = CollectionConfig{AutoInstantiate: true, Sender: "s", PriceOracle: "o",
				SettlementToken: "cw20:token", NativeToken: "native:b"}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDenom(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Denom
		wantErr bool
	}{
		{"native:uusdc", domain.NativeDenom("uusdc"), false},
		{"cw20:addr1", domain.Cw20Denom("addr1"), false},
		{" native:untrn ", domain.NativeDenom("untrn"), false},
		{"uusdc", domain.Denom{}, true},
		{"erc20:x", domain.Denom{}, true},
		{"native:", domain.Denom{}, true},
	}

	for _, tt := range tests {
		got, err := ParseDenom(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDenom(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDenom(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDenom(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
