package consumption

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrNotAuthorized = errors.New("not authorized")
	ErrNotMinter     = fmt.Errorf("%w: caller is not the minter", ErrNotAuthorized)
	ErrNotOwner      = fmt.Errorf("%w: caller is not the token owner", ErrNotAuthorized)
	ErrNotCreator    = fmt.Errorf("%w: caller is not the creator", ErrNotAuthorized)

	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrWrongState    = errors.New("wrong state")
	ErrInvalidInput  = errors.New("invalid input")
	ErrStorage       = errors.New("storage failure")

	ErrAlreadyInstantiated = fmt.Errorf("%w: contract already instantiated", ErrAlreadyExists)
	ErrNotInstantiated     = fmt.Errorf("%w: contract not instantiated", ErrNotFound)
)

var kinds = []error{ErrNotAuthorized, ErrNotFound, ErrAlreadyExists, ErrWrongState, ErrInvalidInput, ErrStorage}

// classify wraps errors that carry no kind as storage failures.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", ErrStorage, err)
}
