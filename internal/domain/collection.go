package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// DenomKind distinguishes native coins from cw20-style token contracts.
type DenomKind string

const (
	DenomNative DenomKind = "native"
	DenomCw20   DenomKind = "cw20"
)

// Denom references a currency by kind and identifier. It is opaque to the
// registry; resolving it is the settlement layer's job.
type Denom struct {
	Kind  DenomKind `msgpack:"kind"`
	Value string    `msgpack:"value"`
}

// NativeDenom returns a native coin reference.
func NativeDenom(denom string) Denom {
	return Denom{Kind: DenomNative, Value: denom}
}

// Cw20Denom returns a token-contract reference.
func Cw20Denom(addr string) Denom {
	return Denom{Kind: DenomCw20, Value: addr}
}

// IsValid checks that the kind is known and the value is set.
func (d Denom) IsValid() bool {
	return (d.Kind == DenomNative || d.Kind == DenomCw20) && d.Value != ""
}

// MarshalJSON encodes the denom as {"native":"..."} or {"cw20":"..."}.
func (d Denom) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[DenomKind]string{d.Kind: d.Value})
}

// UnmarshalJSON decodes the single-key object form.
func (d *Denom) UnmarshalJSON(data []byte) error {
	var m map[DenomKind]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	if len(m) != 1 {
		return errors.New("denom must have exactly one of native, cw20")
	}
	for k, v := range m {
		d.Kind, d.Value = k, v
	}
	if !d.IsValid() {
		return errors.New("invalid denom")
	}
	return nil
}

// Config is the collection-level configuration of a consumption unit collection.
type Config struct {
	SettlementToken Denom  `json:"settlement_token" msgpack:"settlement_token"`
	NativeToken     Denom  `json:"native_token"     msgpack:"native_token"`
	PriceOracle     string `json:"price_oracle"     msgpack:"price_oracle"` // address queried for floor prices
}

// CollectionInfo is the collection metadata.
type CollectionInfo struct {
	Name      string    `json:"name"       msgpack:"name"`
	Symbol    string    `json:"symbol"     msgpack:"symbol"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// ContractVersion identifies the code that last wrote the collection state.
type ContractVersion struct {
	Contract string `json:"contract" msgpack:"contract"`
	Version  string `json:"version"  msgpack:"version"`
}
