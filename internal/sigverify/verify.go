// Package sigverify checks that the instruction immediately before the
// caller is an ed25519 verification over an expected (pubkey, message,
// signature) triple. The runtime has already verified the signature by the
// time the caller runs; this package only proves the verified bytes are
// the ones the caller cares about.
package sigverify

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/sysvar"
)

// Introspector exposes the executing transaction's instruction list.
// *sysvar.Reader satisfies it.
type Introspector interface {
	CurrentIndex() (uint16, error)
	InstructionAt(i uint16) (*sysvar.Instruction, error)
}

var _ Introspector = (*sysvar.Reader)(nil)

// RequireSibling returns the instruction at current-1 if it targets the
// ed25519 program.
func RequireSibling(tx Introspector) (*sysvar.Instruction, error) {
	cur, err := tx.CurrentIndex()
	if err != nil {
		return nil, fmt.Errorf("load current index: %w", err)
	}
	if cur == 0 {
		return nil, NoSignatureInstruction{}
	}
	prev, err := tx.InstructionAt(cur - 1)
	if err != nil {
		return nil, fmt.Errorf("load instruction %d: %w", cur-1, err)
	}
	if !prev.ProgramID.Equals(Ed25519ProgramID) {
		return nil, WrongVerifierProgram{Got: prev.ProgramID}
	}
	return prev, nil
}

// Verify succeeds only when the preceding instruction verified exactly
// sig over msg under pub.
func Verify(tx Introspector, pub solana.PublicKey, msg []byte, sig solana.Signature) error {
	ix, err := RequireSibling(tx)
	if err != nil {
		return err
	}
	return CheckPayload(ix.Data, pub, msg, sig)
}

// CheckPayload matches a single-entry, self-contained payload against the
// expected triple. All ranges are bounds-checked before any comparison.
func CheckPayload(data []byte, pub solana.PublicKey, msg []byte, sig solana.Signature) error {
	if len(data) < HeaderSize {
		return MalformedPayload{Reason: "header shorter than 16 bytes", Len: len(data)}
	}
	entries, err := ParseEntries(data)
	if err != nil {
		return MalformedPayload{Reason: err.Error(), Len: len(data)}
	}
	if len(entries) != 1 {
		return MalformedPayload{Reason: fmt.Sprintf("expected 1 signature, found %d", len(entries)), Len: len(data)}
	}
	e := entries[0]
	if !e.SelfContained() {
		return MalformedPayload{Reason: "offsets reference another instruction", Len: len(data)}
	}

	gotPub, err := Field(data, "pubkey", e.PubkeyOffset, solana.PublicKeyLength)
	if err != nil {
		return err
	}
	gotSig, err := Field(data, "signature", e.SignatureOffset, solana.SignatureLength)
	if err != nil {
		return err
	}
	gotMsg, err := Field(data, "message", e.MessageOffset, int(e.MessageLen))
	if err != nil {
		return err
	}

	if got := solana.PublicKeyFromBytes(gotPub); !got.Equals(pub) {
		return PubkeyMismatch{Got: got, Want: pub}
	}
	if got := solana.SignatureFromBytes(gotSig); got != sig {
		return SignatureMismatch{Got: got}
	}
	if !bytes.Equal(gotMsg, msg) {
		return MessageMismatch{GotLen: len(gotMsg), WantLen: len(msg)}
	}
	return nil
}
