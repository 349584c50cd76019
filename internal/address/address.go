// Package address validates account identities supplied by callers.
package address

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Supported formats.
const (
	FormatLoose  = "loose"
	FormatSolana = "solana"
)

// MaxLooseLength bounds identities accepted by the loose validator.
const MaxLooseLength = 128

// ErrInvalidAddress is wrapped by every validation failure.
var ErrInvalidAddress = errors.New("invalid address")

// Validator checks that an identity is well formed.
type Validator interface {
	Validate(addr string) error
}

// Loose accepts any non-empty identity without whitespace.
type Loose struct{}

// Validate implements Validator.
func (Loose) Validate(addr string) error {
	if addr == "" {
		return fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if len(addr) > MaxLooseLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidAddress, MaxLooseLength)
	}
	if strings.IndexFunc(addr, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidAddress, addr)
	}
	return nil
}

// Solana accepts base58 encoded 32-byte public keys. With OnCurve set the
// key must also be a valid ed25519 point, which rejects program-derived
// addresses.
type Solana struct {
	OnCurve bool
}

// Validate implements Validator.
func (s Solana) Validate(addr string) error {
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidAddress, addr, err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: %q decodes to %d bytes, want 32", ErrInvalidAddress, addr, len(raw))
	}
	if s.OnCurve {
		if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
			return fmt.Errorf("%w: %q is not on the ed25519 curve", ErrInvalidAddress, addr)
		}
	}
	return nil
}

// New returns the validator for format.
func New(format string, onCurve bool) (Validator, error) {
	switch format {
	case "", FormatLoose:
		return Loose{}, nil
	case FormatSolana:
		return Solana{OnCurve: onCurve}, nil
	default:
		return nil, fmt.Errorf("unknown address format %q", format)
	}
}
