package sigverify

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// VerificationError is the closed set of failures Verify and RequireSibling
// report. Codes continue the program's custom error range at 6000.
type VerificationError interface {
	error
	Code() uint32
	verificationError()
}

const (
	CodeNoSignatureInstruction uint32 = 6000 + iota
	CodeWrongVerifierProgram
	CodeMalformedPayload
	CodeOffsetOutOfBounds
	CodePubkeyMismatch
	CodeSignatureMismatch
	CodeMessageMismatch
)

// NoSignatureInstruction: the caller is the first instruction, so there is
// nothing before it to inspect.
type NoSignatureInstruction struct{}

func (NoSignatureInstruction) Error() string      { return "no ed25519 instruction precedes this one" }
func (NoSignatureInstruction) Code() uint32       { return CodeNoSignatureInstruction }
func (NoSignatureInstruction) verificationError() {}

// WrongVerifierProgram: the preceding instruction targets another program.
type WrongVerifierProgram struct {
	Got solana.PublicKey
}

func (e WrongVerifierProgram) Error() string {
	return fmt.Sprintf("preceding instruction targets %s, not the ed25519 program", e.Got)
}
func (WrongVerifierProgram) Code() uint32       { return CodeWrongVerifierProgram }
func (WrongVerifierProgram) verificationError() {}

// MalformedPayload: header too short, a signature count other than one, or
// an entry whose pubkey, signature or message index is not 0xFFFF. Data
// held in another instruction is rejected even when the native program
// would accept it, so a verified triple always lives in the verify
// instruction itself.
type MalformedPayload struct {
	Reason string
	Len    int
}

func (e MalformedPayload) Error() string {
	return fmt.Sprintf("malformed ed25519 payload (%d bytes): %s", e.Len, e.Reason)
}
func (MalformedPayload) Code() uint32       { return CodeMalformedPayload }
func (MalformedPayload) verificationError() {}

// OffsetOutOfBounds: a declared field range does not fit in the payload.
type OffsetOutOfBounds struct {
	Field      string
	Offset     int
	Size       int
	PayloadLen int
}

func (e OffsetOutOfBounds) Error() string {
	return fmt.Sprintf("ed25519 %s range [%d,%d) exceeds payload length %d",
		e.Field, e.Offset, e.Offset+e.Size, e.PayloadLen)
}
func (OffsetOutOfBounds) Code() uint32       { return CodeOffsetOutOfBounds }
func (OffsetOutOfBounds) verificationError() {}

type PubkeyMismatch struct {
	Got  solana.PublicKey
	Want solana.PublicKey
}

func (e PubkeyMismatch) Error() string {
	return fmt.Sprintf("ed25519 pubkey mismatch: got %s want %s", e.Got, e.Want)
}
func (PubkeyMismatch) Code() uint32       { return CodePubkeyMismatch }
func (PubkeyMismatch) verificationError() {}

type SignatureMismatch struct {
	Got solana.Signature
}

func (e SignatureMismatch) Error() string {
	return fmt.Sprintf("ed25519 signature mismatch: got %s", e.Got)
}
func (SignatureMismatch) Code() uint32       { return CodeSignatureMismatch }
func (SignatureMismatch) verificationError() {}

type MessageMismatch struct {
	GotLen  int
	WantLen int
}

func (e MessageMismatch) Error() string {
	return fmt.Sprintf("ed25519 message mismatch (got %d bytes, want %d)", e.GotLen, e.WantLen)
}
func (MessageMismatch) Code() uint32       { return CodeMessageMismatch }
func (MessageMismatch) verificationError() {}
