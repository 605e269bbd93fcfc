// Package native holds the built-in programs a redemption calls into:
// system, ed25519 verification, SPL token, associated token accounts and
// token metadata. Each implements only the instructions the loot flow and
// the devnet genesis need, with the upstream byte layouts.
package native

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
)

const MaxPermittedDataLength = 10 * 1024 * 1024

type SystemProgram struct{}

func (SystemProgram) Process(ctx *bank.InvokeContext, data []byte) error {
	inst, err := system.DecodeInstruction(nil, data)
	if err != nil {
		return fmt.Errorf("%w: %v", bank.ErrInvalidInstructionData, err)
	}
	switch ix := inst.Impl.(type) {
	case *system.CreateAccount:
		return createAccount(ctx, *ix.Lamports, *ix.Space, *ix.Owner)
	case *system.Transfer:
		return transferLamports(ctx, *ix.Lamports)
	case *system.Assign:
		return assign(ctx, *ix.Owner)
	case *system.Allocate:
		return allocate(ctx, *ix.Space)
	default:
		return fmt.Errorf("%w: unsupported system instruction %d", bank.ErrInvalidInstructionData, inst.TypeID.Uint32())
	}
}

func requireSigner(ctx *bank.InvokeContext, i int) (solana.PublicKey, error) {
	m, err := ctx.Meta(i)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !m.IsSigner {
		return m.PublicKey, fmt.Errorf("%w: %s", bank.ErrMissingRequiredSignature, m.PublicKey)
	}
	return m.PublicKey, nil
}

func createAccount(ctx *bank.InvokeContext, lamports, space uint64, owner solana.PublicKey) error {
	if space > MaxPermittedDataLength {
		return fmt.Errorf("%w: space %d", bank.ErrInvalidInstructionData, space)
	}
	if _, err := requireSigner(ctx, 0); err != nil {
		return err
	}
	newKey, err := requireSigner(ctx, 1)
	if err != nil {
		return err
	}
	funder, err := ctx.Account(0)
	if err != nil {
		return err
	}
	acct, err := ctx.Account(1)
	if err != nil {
		return err
	}
	if acct.Lamports > 0 || len(acct.Data) > 0 || !acct.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", bank.ErrAccountAlreadyInUse, newKey)
	}
	if funder.Lamports < lamports {
		return fmt.Errorf("%w: need %d, have %d", bank.ErrInsufficientLamports, lamports, funder.Lamports)
	}
	funder.Lamports -= lamports
	acct.Lamports = lamports
	acct.Data = make([]byte, space)
	acct.Owner = owner
	return nil
}

func transferLamports(ctx *bank.InvokeContext, lamports uint64) error {
	if _, err := requireSigner(ctx, 0); err != nil {
		return err
	}
	from, err := ctx.Account(0)
	if err != nil {
		return err
	}
	to, err := ctx.Account(1)
	if err != nil {
		return err
	}
	if len(from.Data) > 0 {
		return fmt.Errorf("%w: transfer source carries data", bank.ErrInvalidAccountData)
	}
	if from.Lamports < lamports {
		return fmt.Errorf("%w: need %d, have %d", bank.ErrInsufficientLamports, lamports, from.Lamports)
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

func assign(ctx *bank.InvokeContext, owner solana.PublicKey) error {
	if _, err := requireSigner(ctx, 0); err != nil {
		return err
	}
	acct, err := ctx.Account(0)
	if err != nil {
		return err
	}
	acct.Owner = owner
	return nil
}

func allocate(ctx *bank.InvokeContext, space uint64) error {
	if space > MaxPermittedDataLength {
		return fmt.Errorf("%w: space %d", bank.ErrInvalidInstructionData, space)
	}
	key, err := requireSigner(ctx, 0)
	if err != nil {
		return err
	}
	acct, err := ctx.Account(0)
	if err != nil {
		return err
	}
	if len(acct.Data) > 0 || !acct.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", bank.ErrAccountAlreadyInUse, key)
	}
	acct.Data = make([]byte, space)
	return nil
}
