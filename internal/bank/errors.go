package bank

import (
	"errors"
	"fmt"
)

var (
	ErrMissingSignature            = errors.New("bank: transaction has no signatures")
	ErrSignatureVerification       = errors.New("bank: signature verification failed")
	ErrAlreadyProcessed            = errors.New("bank: transaction already processed")
	ErrUnknownProgram              = errors.New("bank: unknown program")
	ErrNotEnoughAccountKeys        = errors.New("bank: not enough account keys")
	ErrMissingAccount              = errors.New("bank: account not passed to caller")
	ErrMissingRequiredSignature    = errors.New("bank: missing required signature")
	ErrPrivilegeEscalation         = errors.New("bank: cross-program invocation with unauthorized signer or writable account")
	ErrCallDepth                   = errors.New("bank: cross-program invocation depth exceeded")
	ErrReentrancy                  = errors.New("bank: cross-program invocation reentrancy not allowed")
	ErrInvalidSeeds                = errors.New("bank: signer seeds do not derive a program address")
	ErrReadonlyDataModified        = errors.New("bank: instruction modified data of a read-only account")
	ErrExternalAccountDataModified = errors.New("bank: instruction modified data of an account it does not own")
	ErrReadonlyLamportChange       = errors.New("bank: instruction changed the balance of a read-only account")
	ErrExternalAccountLamportSpend = errors.New("bank: instruction spent from the balance of an account it does not own")
	ErrModifiedProgramID           = errors.New("bank: instruction illegally modified the program id of an account")
	ErrExecutableModified          = errors.New("bank: instruction changed executable accounts")
	ErrUnbalancedInstruction       = errors.New("bank: sum of account balances before and after instruction do not match")
	ErrAccountAlreadyInUse         = errors.New("bank: account already in use")
	ErrInsufficientLamports        = errors.New("bank: insufficient lamports")
	ErrInvalidInstructionData      = errors.New("bank: invalid instruction data")
	ErrInvalidAccountData          = errors.New("bank: invalid account data for instruction")
	ErrIncorrectProgramID          = errors.New("bank: incorrect program id for instruction")
	ErrCommit                      = errors.New("bank: commit failed")
)

// Coder is implemented by program errors that carry a custom error code.
type Coder interface {
	Code() uint32
}

// TransactionError reports which instruction aborted a transaction.
type TransactionError struct {
	Instruction int
	Err         error
	Logs        []string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Instruction, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// ErrorCode extracts the custom program error code from err, if any.
func ErrorCode(err error) (uint32, bool) {
	var c Coder
	if errors.As(err, &c) {
		return c.Code(), true
	}
	return 0, false
}
