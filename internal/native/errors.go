package native

import (
	"errors"
	"fmt"
)

// TokenError mirrors the SPL token program's error codes.
type TokenError uint32

const (
	TokenNotRentExempt TokenError = iota
	TokenInsufficientFunds
	TokenInvalidMint
	TokenMintMismatch
	TokenOwnerMismatch
	TokenFixedSupply
	TokenAlreadyInUse
	TokenInvalidNumberOfProvidedSigners
	TokenInvalidNumberOfRequiredSigners
	TokenUninitializedState
	TokenNativeNotSupported
	TokenNonNativeHasBalance
	TokenInvalidInstruction
	TokenInvalidState
	TokenOverflow
	TokenAuthorityTypeNotSupported
	TokenMintCannotFreeze
	TokenAccountFrozen
)

var tokenErrorText = map[TokenError]string{
	TokenNotRentExempt:                  "lamport balance below rent-exempt threshold",
	TokenInsufficientFunds:              "insufficient funds",
	TokenInvalidMint:                    "invalid mint",
	TokenMintMismatch:                   "account not associated with this mint",
	TokenOwnerMismatch:                  "owner does not match",
	TokenFixedSupply:                    "fixed supply",
	TokenAlreadyInUse:                   "already in use",
	TokenInvalidNumberOfProvidedSigners: "invalid number of provided signers",
	TokenInvalidNumberOfRequiredSigners: "invalid number of required signers",
	TokenUninitializedState:             "state is uninitialized",
	TokenNativeNotSupported:             "instruction does not support native tokens",
	TokenNonNativeHasBalance:            "non-native account can only be closed if its balance is zero",
	TokenInvalidInstruction:             "invalid instruction",
	TokenInvalidState:                   "state is invalid for requested operation",
	TokenOverflow:                       "operation overflowed",
	TokenAuthorityTypeNotSupported:      "account does not support specified authority type",
	TokenMintCannotFreeze:               "this token mint cannot freeze accounts",
	TokenAccountFrozen:                  "account is frozen",
}

func (e TokenError) Error() string {
	if s, ok := tokenErrorText[e]; ok {
		return "token: " + s
	}
	return fmt.Sprintf("token: error %d", uint32(e))
}

func (e TokenError) Code() uint32 { return uint32(e) }

var (
	ErrPrecompileInvalidDataOffsets = errors.New("ed25519: invalid data offsets")
	ErrPrecompileInvalidSignature   = errors.New("ed25519: invalid signature")
	ErrPrecompileInvalidDataSize    = errors.New("ed25519: invalid instruction data size")
)

// MetadataError carries the token metadata program's error codes for the
// failures its create path can produce.
type MetadataError uint32

const (
	MetadataInstructionUnpackError MetadataError = 0
	MetadataAlreadyInitialized     MetadataError = 5
	MetadataNameTooLong            MetadataError = 11
	MetadataSymbolTooLong          MetadataError = 12
	MetadataURITooLong             MetadataError = 13
	MetadataDerivedKeyInvalid      MetadataError = 27
	MetadataInvalidMintAuthority   MetadataError = 40
	MetadataInvalidFeeBasisPoints  MetadataError = 55
	MetadataInvalidTokenStandard   MetadataError = 148
)

var metadataErrorText = map[MetadataError]string{
	MetadataInstructionUnpackError: "failed to unpack instruction data",
	MetadataAlreadyInitialized:     "already initialized",
	MetadataNameTooLong:            "name too long",
	MetadataSymbolTooLong:          "symbol too long",
	MetadataURITooLong:             "uri too long",
	MetadataDerivedKeyInvalid:      "derived key invalid",
	MetadataInvalidMintAuthority:   "invalid mint authority",
	MetadataInvalidFeeBasisPoints:  "basis points cannot be more than 10000",
	MetadataInvalidTokenStandard:   "invalid token standard",
}

func (e MetadataError) Error() string {
	if s, ok := metadataErrorText[e]; ok {
		return "metadata: " + s
	}
	return fmt.Sprintf("metadata: error %d", uint32(e))
}

func (e MetadataError) Code() uint32 { return uint32(e) }
