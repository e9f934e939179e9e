package ledger

import (
	"errors"
	"fmt"

	"github.com/ruteri/compressed-tree-registry/interfaces"
)

var (
	ErrMissingSignature     = errors.New("missing signature")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrDuplicateTransaction = errors.New("transaction already processed")
	ErrProgramNotFound      = errors.New("program not deployed")

	// ErrAccountNotFound wraps interfaces.ErrNotFound so callers can match either.
	ErrAccountNotFound = fmt.Errorf("account %w", interfaces.ErrNotFound)

	ErrAccountNotDeclared  = errors.New("account not declared by instruction")
	ErrAccountNotWritable  = errors.New("account not writable")
	ErrAccountInUse        = errors.New("account already in use")
	ErrAccountDataSize     = errors.New("account data size cannot change")
	ErrIllegalOwner        = errors.New("account not owned by executing program")
	ErrMissingRequiredSig  = errors.New("missing required signature")
	ErrPrivilegeEscalation = errors.New("cross-program invocation with unauthorized signer or writable account")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrCallDepth           = errors.New("cross-program invocation exceeds max depth")
	ErrWriteConflict       = errors.New("transaction conflicts with a concurrent write")
	ErrNotEnoughAccounts   = errors.New("not enough account keys given to the instruction")
	ErrInvalidInstruction  = errors.New("invalid instruction data")
)
