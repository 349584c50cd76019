package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"consumption-unit/internal/consumption"
	"consumption-unit/internal/domain"
)

// ExecuteMsg is the externally tagged execute envelope. Exactly one field is set.
type ExecuteMsg struct {
	Mint                 *consumption.MintMsg                 `json:"mint,omitempty"`
	Burn                 *BurnMsg                             `json:"burn,omitempty"`
	UpdateNftInfo        *UpdateNftInfoMsg                    `json:"update_nft_info,omitempty"`
	Select               *SelectMsg                           `json:"select,omitempty"`
	UpdateCollectionInfo *consumption.UpdateCollectionInfoMsg `json:"update_collection_info,omitempty"`
}

// BurnMsg removes a token.
type BurnMsg struct {
	TokenID string `json:"token_id"`
}

// UpdateNftInfoMsg changes a token's extension.
type UpdateNftInfoMsg struct {
	TokenID   string          `json:"token_id"`
	Extension ExtensionUpdate `json:"extension"`
}

// ExtensionUpdate lists the supported extension changes. Exactly one is set.
type ExtensionUpdate struct {
	UpdatePool *UpdatePool `json:"update_pool,omitempty"`
}

// UpdatePool moves a token to another commitment tier.
type UpdatePool struct {
	NewCommitmentTierID uint16 `json:"new_commitment_tier_id"`
}

// SelectMsg marks a token as selected.
type SelectMsg struct {
	TokenID string `json:"token_id"`
}

// MigrateMsg is the migrate envelope: {"migrate":{}}.
type MigrateMsg struct {
	Migrate *struct{} `json:"migrate,omitempty"`
}

// QueryMsg is the externally tagged query envelope. Exactly one field is set.
type QueryMsg struct {
	GetConfig           *struct{}       `json:"get_config,omitempty"`
	OwnerOf             *OwnerOfQuery   `json:"owner_of,omitempty"`
	NumTokens           *struct{}       `json:"num_tokens,omitempty"`
	GetMinterOwnership  *struct{}       `json:"get_minter_ownership,omitempty"`
	GetCreatorOwnership *struct{}       `json:"get_creator_ownership,omitempty"`
	NftInfo             *NftInfoQuery   `json:"nft_info,omitempty"`
	Tokens              *TokensQuery    `json:"tokens,omitempty"`
	AllTokens           *AllTokensQuery `json:"all_tokens,omitempty"`
	GetCollectionInfo   *struct{}       `json:"get_collection_info,omitempty"`
	ContractVersion     *struct{}       `json:"contract_version,omitempty"`
}

// OwnerOfQuery asks for a token's owner. IncludeExpired is accepted for
// compatibility; approvals are never stored.
type OwnerOfQuery struct {
	TokenID        string `json:"token_id"`
	IncludeExpired *bool  `json:"include_expired,omitempty"`
}

// NftInfoQuery asks for a token's extension.
type NftInfoQuery struct {
	TokenID string `json:"token_id"`
}

// TokensQuery pages through one owner's tokens.
type TokensQuery struct {
	Owner      string  `json:"owner"`
	StartAfter *string `json:"start_after,omitempty"`
	Limit      *uint32 `json:"limit,omitempty"`
}

// AllTokensQuery pages through every token.
type AllTokensQuery struct {
	StartAfter *string `json:"start_after,omitempty"`
	Limit      *uint32 `json:"limit,omitempty"`
}

// Approval is a transfer grant. Kept for response shape only.
type Approval struct {
	Spender string `json:"spender"`
}

// OwnerOfResponse is the owner_of result.
type OwnerOfResponse struct {
	Owner     string     `json:"owner"`
	Approvals []Approval `json:"approvals"`
}

// NumTokensResponse is the num_tokens result.
type NumTokensResponse struct {
	Count uint64 `json:"count"`
}

// NftInfoResponse is the nft_info result. TokenURI is always null.
type NftInfoResponse struct {
	TokenURI  *string                    `json:"token_uri"`
	Extension domain.ConsumptionUnitData `json:"extension"`
}

// TokensResponse is the tokens and all_tokens result.
type TokensResponse struct {
	Tokens []string `json:"tokens"`
}

// decodeStruct strictly unmarshals raw into v.
func decodeStruct(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode message: %w", consumption.ErrInvalidInput, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after message", consumption.ErrInvalidInput)
	}
	return nil
}

// decode strictly unmarshals raw into v and checks that exactly one
// top-level variant is set. It returns the JSON name of that variant.
func decode(raw []byte, v any) (string, error) {
	if err := decodeStruct(raw, v); err != nil {
		return "", err
	}

	rv := reflect.ValueOf(v).Elem()
	var name string
	for i := 0; i < rv.NumField(); i++ {
		if rv.Field(i).IsNil() {
			continue
		}
		if name != "" {
			return "", fmt.Errorf("%w: message must have exactly one variant", consumption.ErrInvalidInput)
		}
		name = variantName(rv.Type().Field(i))
	}
	if name == "" {
		return "", fmt.Errorf("%w: empty message", consumption.ErrInvalidInput)
	}
	return name, nil
}

func variantName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	return name
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
