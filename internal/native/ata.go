package native

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	ata "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
)

const (
	ataCreate           byte = 0
	ataCreateIdempotent byte = 1
)

// AssociatedTokenProgram creates the canonical token account for a
// (wallet, mint) pair.
type AssociatedTokenProgram struct{}

// NewCreateIdempotentInstruction is Create that succeeds when the account
// already exists for the same wallet and mint. The trailing rent sysvar of
// the legacy layout is dropped.
func NewCreateIdempotentInstruction(payer, wallet, mint solana.PublicKey) *solana.GenericInstruction {
	built := ata.NewCreateInstruction(payer, wallet, mint).Build()
	return solana.NewInstruction(ata.ProgramID, built.Accounts()[:6], []byte{ataCreateIdempotent})
}

func (AssociatedTokenProgram) Process(ctx *bank.InvokeContext, data []byte) error {
	idempotent := false
	switch {
	case len(data) == 0 || (len(data) == 1 && data[0] == ataCreate):
	case len(data) == 1 && data[0] == ataCreateIdempotent:
		idempotent = true
	default:
		return fmt.Errorf("%w: associated token instruction %x", bank.ErrInvalidInstructionData, data)
	}

	keys := make([]solana.PublicKey, 6)
	for i := range keys {
		k, err := ctx.Key(i)
		if err != nil {
			return err
		}
		keys[i] = k
	}
	payer, addr, wallet, mint, tokenProgram := keys[0], keys[1], keys[2], keys[3], keys[5]

	want, bump, err := solana.FindProgramAddress([][]byte{wallet[:], tokenProgram[:], mint[:]}, ctx.ProgramID())
	if err != nil {
		return err
	}
	if !want.Equals(addr) {
		return fmt.Errorf("%w: associated address %s, derived %s", bank.ErrInvalidSeeds, addr, want)
	}

	acct, err := ctx.Account(1)
	if err != nil {
		return err
	}
	if idempotent && acct.Owner.Equals(tokenProgram) {
		existing, err := LoadTokenAccount(acct)
		if err != nil {
			return err
		}
		if !existing.Owner.Equals(wallet) || !existing.Mint.Equals(mint) {
			return fmt.Errorf("%w: existing account does not match wallet and mint", bank.ErrInvalidAccountData)
		}
		return nil
	}
	if !acct.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%w: %s", bank.ErrAccountAlreadyInUse, addr)
	}

	mintAcct, err := ctx.Account(3)
	if err != nil {
		return err
	}
	if _, err := LoadMint(mintAcct); err != nil {
		return err
	}

	seeds := [][]byte{wallet[:], tokenProgram[:], mint[:], {bump}}
	if err := createPDA(ctx, payer, addr, acct, AccountSize, tokenProgram, seeds); err != nil {
		return err
	}
	ctx.Logf("Initialize the associated token account")
	return ctx.Invoke(token.NewInitializeAccount3Instruction(wallet, addr, mint).Build())
}

// createPDA funds, allocates and assigns a program-derived account. An
// account that already holds lamports is topped up instead of created.
func createPDA(ctx *bank.InvokeContext, payer, addr solana.PublicKey, acct *bank.Account, space uint64, owner solana.PublicKey, seeds [][]byte) error {
	rent := bank.RentExemptMinimum(space)
	if acct.Lamports == 0 {
		return ctx.Invoke(system.NewCreateAccountInstruction(rent, space, owner, payer, addr).Build(), seeds)
	}
	if acct.Lamports < rent {
		if err := ctx.Invoke(system.NewTransferInstruction(rent-acct.Lamports, payer, addr).Build()); err != nil {
			return err
		}
	}
	if err := ctx.Invoke(system.NewAllocateInstruction(space, addr).Build(), seeds); err != nil {
		return err
	}
	return ctx.Invoke(system.NewAssignInstruction(owner, addr).Build(), seeds)
}
