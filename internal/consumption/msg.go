package consumption

import (
	"time"

	"consumption-unit/internal/domain"
)

// Env is the invocation environment: the authenticated caller and the time
// assigned to the invocation.
type Env struct {
	Sender string
	Time   time.Time
}

// CollectionInfoExtension carries the collection configuration supplied at creation.
type CollectionInfoExtension struct {
	SettlementToken domain.Denom `json:"settlement_token"`
	NativeToken     domain.Denom `json:"native_token"`
	PriceOracle     string       `json:"price_oracle"`
}

// InstantiateMsg creates the collection. Minter and Creator default to the caller.
type InstantiateMsg struct {
	Name                    string                  `json:"name"`
	Symbol                  string                  `json:"symbol"`
	CollectionInfoExtension CollectionInfoExtension `json:"collection_info_extension"`
	Minter                  *string                 `json:"minter,omitempty"`
	Creator                 *string                 `json:"creator,omitempty"`
	WithdrawAddress         *string                 `json:"withdraw_address,omitempty"` // must be unset
}

// MintMsg creates a token.
type MintMsg struct {
	TokenID   string                     `json:"token_id"`
	Owner     string                     `json:"owner"`
	TokenURI  *string                    `json:"token_uri,omitempty"` // accepted, not stored
	Extension domain.ConsumptionUnitData `json:"extension"`
}

// UpdateCollectionInfoMsg renames the collection. Unset fields are kept.
type UpdateCollectionInfoMsg struct {
	Name   *string `json:"name,omitempty"`
	Symbol *string `json:"symbol,omitempty"`
}

// RepriceRequest asks the pricing service to recompute a token's floor
// price after its tier changed.
type RepriceRequest struct {
	TokenID string `json:"token_id"`
	Tier    uint16 `json:"tier"`
}

// Response is the result of a mutation.
type Response struct {
	Attributes []domain.Attribute `json:"attributes"`
	Events     []domain.Event     `json:"events"`
	Reprice    *RepriceRequest    `json:"reprice,omitempty"`
}

func newResponse(action string) *Response {
	return &Response{
		Attributes: []domain.Attribute{{Key: "action", Value: action}},
	}
}

func (r *Response) addEvent(typ string, kv ...string) *Response {
	ev := domain.Event{Type: typ}
	for i := 0; i+1 < len(kv); i += 2 {
		ev.Attributes = append(ev.Attributes, domain.Attribute{Key: kv[i], Value: kv[i+1]})
	}
	r.Events = append(r.Events, ev)
	return r
}
