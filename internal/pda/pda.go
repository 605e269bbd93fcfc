// Package pda derives the loot program's keyless authorities.
package pda

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Seed labels. Changing any of them moves every authority address.
const (
	LootMintAuthority = "loot-mint-auth"
	CapsMint          = "caps-mint"
	Treasury          = "treasury"
)

var (
	ErrBumpMismatch = errors.New("pda: stored bump does not reproduce address")
	ErrCollision    = errors.New("pda: authorities share an address")
)

// Authority is a program-derived address together with the seed material
// needed to sign for it.
type Authority struct {
	Label   string
	Address solana.PublicKey
	Bump    uint8
}

// Derive finds the canonical (highest valid bump) address for label.
func Derive(label string, programID solana.PublicKey) (Authority, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte(label)}, programID)
	if err != nil {
		return Authority{}, fmt.Errorf("derive %q: %w", label, err)
	}
	return Authority{Label: label, Address: addr, Bump: bump}, nil
}

// SignerSeeds returns {label, {bump}} for invoke_signed.
func (a Authority) SignerSeeds() [][]byte {
	return [][]byte{[]byte(a.Label), {a.Bump}}
}

// Check re-derives the address from the stored bump.
func (a Authority) Check(programID solana.PublicKey) error {
	addr, err := solana.CreateProgramAddress(a.SignerSeeds(), programID)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Label, err)
	}
	if !addr.Equals(a.Address) {
		return fmt.Errorf("%s: %w", a.Label, ErrBumpMismatch)
	}
	return nil
}

// Authorities holds every address the loot program signs for or pins.
type Authorities struct {
	MintAuthority Authority
	CapsMint      Authority
	Treasury      Authority
}

// DeriveAll derives every authority and validates the set.
func DeriveAll(programID solana.PublicKey) (Authorities, error) {
	var (
		out Authorities
		err error
	)
	if out.MintAuthority, err = Derive(LootMintAuthority, programID); err != nil {
		return Authorities{}, err
	}
	if out.CapsMint, err = Derive(CapsMint, programID); err != nil {
		return Authorities{}, err
	}
	if out.Treasury, err = Derive(Treasury, programID); err != nil {
		return Authorities{}, err
	}
	if err := out.Validate(programID); err != nil {
		return Authorities{}, err
	}
	return out, nil
}

// Validate checks each stored bump and that no two authorities share an
// address.
func (a Authorities) Validate(programID solana.PublicKey) error {
	seen := make(map[solana.PublicKey]string, 3)
	for _, auth := range []Authority{a.MintAuthority, a.CapsMint, a.Treasury} {
		if err := auth.Check(programID); err != nil {
			return err
		}
		if prev, dup := seen[auth.Address]; dup {
			return fmt.Errorf("%s and %s: %w", prev, auth.Label, ErrCollision)
		}
		seen[auth.Address] = auth.Label
	}
	return nil
}
