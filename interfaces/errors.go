package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyInitialized is returned by initialize when the registry state account is in use.
	ErrAlreadyInitialized = errors.New("registry already initialized")

	// ErrNotFound is returned when the registry state or a referenced account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTreeNotFound is returned when a mint targets a tree the registry never provisioned.
	ErrTreeNotFound = fmt.Errorf("tree %w", ErrNotFound)

	// ErrRegistryFull is returned by create_tree once tree_count reached the capacity.
	ErrRegistryFull = errors.New("registry full")

	// ErrInvalidTreeParameters is returned for unsupported (depth, buffer size, canopy) combinations.
	ErrInvalidTreeParameters = errors.New("invalid tree parameters")

	// ErrUnauthorizedAuthority is returned when a supplied authority does not match the derived one,
	// or a privileged operation is signed by someone other than the creator.
	ErrUnauthorizedAuthority = errors.New("unauthorized authority")

	// ErrCollectionAuthorityMismatch is returned when a collection's update authority is not the
	// tree authority of the tree being minted into.
	ErrCollectionAuthorityMismatch = errors.New("collection authority mismatch")

	// ErrDelegatedProtocol matches any *DelegatedProtocolError.
	ErrDelegatedProtocol = errors.New("delegated protocol error")

	// ErrCorruptState is returned when an account cannot be decoded with the expected layout.
	ErrCorruptState = errors.New("corrupt account state")

	// ErrEventNotFound is returned when no append event for a tree is present in a transaction log.
	ErrEventNotFound = errors.New("leaf append event not found")
)

// DelegatedProtocolError carries a failure raised inside a cross-program call.
// The original error is kept intact and reachable through errors.Is / errors.As.
type DelegatedProtocolError struct {
	Program Pubkey
	Err     error
}

func (e *DelegatedProtocolError) Error() string {
	return fmt.Sprintf("program %s failed: %v", e.Program, e.Err)
}

func (e *DelegatedProtocolError) Unwrap() error {
	return e.Err
}

// Is makes every DelegatedProtocolError match ErrDelegatedProtocol.
func (e *DelegatedProtocolError) Is(target error) bool {
	return target == ErrDelegatedProtocol
}

// NewDelegatedProtocolError wraps err unless it already is a delegated failure.
func NewDelegatedProtocolError(program Pubkey, err error) error {
	if err == nil {
		return nil
	}
	var existing *DelegatedProtocolError
	if errors.As(err, &existing) {
		return err
	}
	return &DelegatedProtocolError{Program: program, Err: err}
}
