package native

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/sigverify"
)

// Ed25519Program verifies every signature described by its instruction
// data before any program in the transaction runs.
type Ed25519Program struct{}

func (Ed25519Program) Verify(data []byte, instructionData [][]byte) error {
	if len(data) < 2 {
		return ErrPrecompileInvalidDataSize
	}
	entries, err := sigverify.ParseEntries(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrecompileInvalidDataSize, err)
	}
	if len(entries) == 0 && len(data) > 2 {
		return ErrPrecompileInvalidDataSize
	}

	source := func(ix uint16) ([]byte, error) {
		if ix == sigverify.ThisInstruction {
			return data, nil
		}
		if int(ix) >= len(instructionData) {
			return nil, fmt.Errorf("%w: instruction index %d", ErrPrecompileInvalidDataOffsets, ix)
		}
		return instructionData[ix], nil
	}
	field := func(ix, off uint16, name string, size int) ([]byte, error) {
		src, err := source(ix)
		if err != nil {
			return nil, err
		}
		b, err := sigverify.Field(src, name, off, size)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPrecompileInvalidDataOffsets, err)
		}
		return b, nil
	}

	for i, e := range entries {
		pub, err := field(e.PubkeyIx, e.PubkeyOffset, "pubkey", solana.PublicKeyLength)
		if err != nil {
			return err
		}
		sig, err := field(e.SignatureIx, e.SignatureOffset, "signature", solana.SignatureLength)
		if err != nil {
			return err
		}
		msg, err := field(e.MessageIx, e.MessageOffset, "message", int(e.MessageLen))
		if err != nil {
			return err
		}
		if !solana.SignatureFromBytes(sig).Verify(solana.PublicKeyFromBytes(pub), msg) {
			return fmt.Errorf("%w: entry %d", ErrPrecompileInvalidSignature, i)
		}
	}
	return nil
}
