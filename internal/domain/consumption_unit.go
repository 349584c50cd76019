package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsumptionUnitState is the lifecycle state of a consumption unit.
type ConsumptionUnitState string

const (
	// StateReflected is assigned at mint.
	StateReflected ConsumptionUnitState = "reflected"
	// StateNominated means the unit takes part in the raffle; the tier can still change.
	StateNominated ConsumptionUnitState = "nominated"
	// StateSelected means the unit won the raffle; the tier is frozen.
	StateSelected ConsumptionUnitState = "selected"
)

// String returns the string representation of ConsumptionUnitState.
func (s ConsumptionUnitState) String() string {
	return string(s)
}

// IsValid checks if the state is a known value.
func (s ConsumptionUnitState) IsValid() bool {
	return s == StateReflected || s == StateNominated || s == StateSelected
}

// ConsumptionUnitData is the extension payload carried by every token.
type ConsumptionUnitData struct {
	ConsumptionValue uint64               `json:"consumption_value,string" msgpack:"consumption_value"` // value in settlement tokens
	NominalQuantity  uint64               `json:"nominal_quantity,string"  msgpack:"nominal_quantity"`  // sum of nominal qty from consumption records
	NominalCurrency  string               `json:"nominal_currency"         msgpack:"nominal_currency"`
	CommitmentTier   uint16               `json:"commitment_tier"          msgpack:"commitment_tier"`
	State            ConsumptionUnitState `json:"state"                    msgpack:"state"`
	FloorPrice       decimal.Decimal      `json:"floor_price"              msgpack:"floor_price"`
	Hashes           []string             `json:"hashes"                   msgpack:"hashes"`
	CreatedAt        time.Time            `json:"created_at"               msgpack:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"               msgpack:"updated_at"`
}

// Clone returns a deep copy so callers cannot alias the stored hash slice.
func (d ConsumptionUnitData) Clone() ConsumptionUnitData {
	out := d
	if d.Hashes != nil {
		out.Hashes = append([]string(nil), d.Hashes...)
	}
	return out
}

// UpdateTier returns a copy with the new tier applied at the given time.
// A reflected unit becomes nominated; floor price recomputation is left to
// the pricing service.
func (d ConsumptionUnitData) UpdateTier(tier uint16, now time.Time) ConsumptionUnitData {
	out := d.Clone()
	out.CommitmentTier = tier
	out.UpdatedAt = now
	if out.State == StateReflected {
		out.State = StateNominated
	}
	return out
}
