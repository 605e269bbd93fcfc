package loot

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/native"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/pda"
)

// SeedCapsMint installs the CAPS mint at its program address with the
// treasury as mint authority. An existing mint is left untouched.
func SeedCapsMint(b bank.Ledger, auth pda.Authorities) error {
	if _, err := b.GetAccount(auth.CapsMint.Address); err == nil {
		return nil
	} else if !errors.Is(err, bank.ErrAccountNotFound) {
		return err
	}
	treasury := auth.Treasury.Address
	acct, err := native.NewMintAccount(token.Mint{
		MintAuthority: &treasury,
		Decimals:      CapsDecimals,
		IsInitialized: true,
	})
	if err != nil {
		return err
	}
	return b.SetAccount(auth.CapsMint.Address, acct)
}

// SeedCaps credits amount base units of CAPS to wallet's associated token
// account, creating it when absent, and returns that account. Run it under
// Bank.Modify when transactions may be in flight.
func SeedCaps(b bank.Ledger, auth pda.Authorities, wallet solana.PublicKey, amount uint64) (solana.PublicKey, error) {
	capsMint := auth.CapsMint.Address
	mintAcct, err := b.GetAccount(capsMint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("load caps mint: %w", err)
	}
	mint, err := native.LoadMint(mintAcct)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("load caps mint: %w", err)
	}
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, capsMint)
	if err != nil {
		return solana.PublicKey{}, err
	}

	holding := token.Account{Mint: capsMint, Owner: wallet, State: token.Initialized}
	if existing, err := b.GetAccount(ata); err == nil {
		ta, err := native.LoadTokenAccount(existing)
		if err != nil {
			return solana.PublicKey{}, fmt.Errorf("load %s: %w", ata, err)
		}
		holding = *ta
	} else if !errors.Is(err, bank.ErrAccountNotFound) {
		return solana.PublicKey{}, err
	}

	var carry uint64
	if holding.Amount, carry = bits.Add64(holding.Amount, amount, 0); carry != 0 {
		return solana.PublicKey{}, native.TokenOverflow
	}
	if mint.Supply, carry = bits.Add64(mint.Supply, amount, 0); carry != 0 {
		return solana.PublicKey{}, native.TokenOverflow
	}

	ataAcct, err := native.NewTokenAccount(holding)
	if err != nil {
		return solana.PublicKey{}, err
	}
	newMint, err := native.NewMintAccount(*mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := b.SetAccount(ata, ataAcct); err != nil {
		return solana.PublicKey{}, err
	}
	if err := b.SetAccount(capsMint, newMint); err != nil {
		return solana.PublicKey{}, err
	}
	return ata, nil
}
