// Package loot is the on-ledger redemption program. claim_loot burns the
// player's CAPS fee, checks the server-signed voucher against the ed25519
// instruction placed right before it, mints a one-of-one loot token and
// attaches immutable metadata. Any failure aborts the whole transaction.
package loot

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/pda"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/voucher"
)

const (
	CapsDecimals = 9
	// FeeAmount is 100 CAPS in base units.
	FeeAmount uint64 = 100 * 1_000_000_000

	Symbol  = "FIZZLOOT"
	nameFmt = "Fizz Cache #%d @ (%.4f,%.4f) %s"
	uriFmt  = "https://atomicfizzcaps.xyz/loot/%d.json"
)

// Program is the loot program bound to one deployment address and one
// trusted voucher issuer.
type Program struct {
	id          solana.PublicKey
	serverKey   solana.PublicKey
	auth        pda.Authorities
	replayGuard bool
	log         *zap.Logger
}

type Option func(*Program)

// WithReplayGuard records every redeemed voucher so it can only be
// claimed once.
func WithReplayGuard() Option {
	return func(p *Program) { p.replayGuard = true }
}

func NewProgram(id, serverKey solana.PublicKey, log *zap.Logger, opts ...Option) (*Program, error) {
	auth, err := pda.DeriveAll(id)
	if err != nil {
		return nil, fmt.Errorf("derive authorities: %w", err)
	}
	p := &Program{id: id, serverKey: serverKey, auth: auth, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Program) ID() solana.PublicKey { return p.id }

func (p *Program) ServerKey() solana.PublicKey { return p.serverKey }

func (p *Program) Authorities() pda.Authorities { return p.auth }

func (p *Program) ReplayGuard() bool { return p.replayGuard }

// Process dispatches on the 8-byte instruction discriminator.
func (p *Program) Process(ctx *bank.InvokeContext, data []byte) error {
	if len(data) < len(ClaimLootDiscriminator) {
		return ErrInstructionMissing
	}
	if !bytes.Equal(data[:8], ClaimLootDiscriminator[:]) {
		return ErrInstructionNotFound
	}
	var v voucher.LootVoucher
	if err := v.UnmarshalWithDecoder(bin.NewBorshDecoder(data[8:])); err != nil {
		return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
	}
	return p.claim(ctx, &v)
}

// AssetName is the metadata name minted for v.
func AssetName(v *voucher.LootVoucher) string {
	return fmt.Sprintf(nameFmt, v.LootID, v.Latitude, v.Longitude, v.LocationHint)
}

func AssetURI(lootID uint64) string {
	return fmt.Sprintf(uriFmt, lootID)
}
