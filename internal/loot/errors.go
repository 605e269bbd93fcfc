package loot

import "fmt"

// programError is a fixed, coded failure of the loot program.
type programError struct {
	code uint32
	msg  string
}

func (e programError) Error() string { return fmt.Sprintf("loot: %s (code %d)", e.msg, e.code) }
func (e programError) Code() uint32  { return e.code }

var (
	ErrInstructionMissing           = programError{100, "instruction discriminator not provided"}
	ErrInstructionNotFound          = programError{101, "fallback functions are not supported"}
	ErrInstructionDidNotDeserialize = programError{102, "the program could not deserialize the given instruction"}
	ErrVoucherConsumed              = programError{6007, "voucher already redeemed"}
)

// ConstraintKind values are the Anchor account-validation error codes.
type ConstraintKind uint32

const (
	ConstraintMut              ConstraintKind = 2000
	ConstraintSeeds            ConstraintKind = 2006
	ConstraintAssociated       ConstraintKind = 2009
	ConstraintAddress          ConstraintKind = 2012
	ConstraintTokenMint        ConstraintKind = 2014
	ConstraintTokenOwner       ConstraintKind = 2015
	AccountNotEnoughKeys       ConstraintKind = 3005
	AccountOwnedByWrongProgram ConstraintKind = 3007
	InvalidProgramID           ConstraintKind = 3008
	AccountNotSigner           ConstraintKind = 3010
	AccountNotInitialized      ConstraintKind = 3012
)

// ConstraintError rejects an account before any stage runs.
type ConstraintError struct {
	Account string
	Reason  string
	Kind    ConstraintKind
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("loot: account %s: %s (code %d)", e.Account, e.Reason, e.Kind)
}

func (e *ConstraintError) Code() uint32 { return uint32(e.Kind) }

func constraint(account string, kind ConstraintKind, format string, args ...any) *ConstraintError {
	return &ConstraintError{Account: account, Reason: fmt.Sprintf(format, args...), Kind: kind}
}
