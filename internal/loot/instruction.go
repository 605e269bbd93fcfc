package loot

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/native"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/pda"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/sigverify"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/voucher"
)

// DefaultProgramID is the address the loot program is deployed at.
var DefaultProgramID = solana.MustPublicKeyFromBase58("GDGexnGtZPoD1aHv6qg8hjeSspujwWnxJCtdrrj2gKpP")

var ClaimLootDiscriminator = sighash("global:claim_loot")

func sighash(preimage string) (out [8]byte) {
	sum := sha256.Sum256([]byte(preimage))
	copy(out[:], sum[:8])
	return out
}

// Account positions of claim_loot.
const (
	idxPlayer = iota
	idxPlayerCapsATA
	idxLootMint
	idxPlayerLootATA
	idxMintAuthority
	idxCapsMint
	idxServerKey
	idxMetadata
	idxSystemProgram
	idxTokenProgram
	idxATAProgram
	idxInstructions
	idxMetadataProgram
	idxConsumed

	numClaimAccounts = idxConsumed
)

// ClaimAccounts are the caller-specific accounts of one redemption. The
// fixed program and sysvar accounts are filled in by the builder.
type ClaimAccounts struct {
	Player        solana.PublicKey
	PlayerCapsATA solana.PublicKey
	LootMint      solana.PublicKey
	PlayerLootATA solana.PublicKey
	MintAuthority solana.PublicKey
	CapsMint      solana.PublicKey
	ServerKey     solana.PublicKey
	Metadata      solana.PublicKey
	// Consumed is zero unless the program runs with the replay guard.
	Consumed solana.PublicKey
}

// DeriveClaimAccounts computes every derived address of a redemption by
// player with a freshly generated lootMint.
func DeriveClaimAccounts(programID, player, lootMint, serverKey solana.PublicKey, v *voucher.LootVoucher, replayGuard bool) (ClaimAccounts, error) {
	auth, err := pda.DeriveAll(programID)
	if err != nil {
		return ClaimAccounts{}, err
	}
	capsATA, _, err := solana.FindAssociatedTokenAddress(player, auth.CapsMint.Address)
	if err != nil {
		return ClaimAccounts{}, err
	}
	lootATA, _, err := solana.FindAssociatedTokenAddress(player, lootMint)
	if err != nil {
		return ClaimAccounts{}, err
	}
	md, _, err := native.MetadataAddress(lootMint)
	if err != nil {
		return ClaimAccounts{}, err
	}
	out := ClaimAccounts{
		Player:        player,
		PlayerCapsATA: capsATA,
		LootMint:      lootMint,
		PlayerLootATA: lootATA,
		MintAuthority: auth.MintAuthority.Address,
		CapsMint:      auth.CapsMint.Address,
		ServerKey:     serverKey,
		Metadata:      md,
	}
	if replayGuard {
		if out.Consumed, _, err = ConsumedAddress(programID, v); err != nil {
			return ClaimAccounts{}, err
		}
	}
	return out, nil
}

// NewClaimLootInstruction encodes claim_loot with v as its argument.
func NewClaimLootInstruction(programID solana.PublicKey, a ClaimAccounts, v *voucher.LootVoucher) (*solana.GenericInstruction, error) {
	buf := new(bytes.Buffer)
	buf.Write(ClaimLootDiscriminator[:])
	if err := v.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode claim_loot args: %w", err)
	}
	metas := solana.AccountMetaSlice{
		solana.Meta(a.Player).WRITE().SIGNER(),
		solana.Meta(a.PlayerCapsATA).WRITE(),
		solana.Meta(a.LootMint).WRITE().SIGNER(),
		solana.Meta(a.PlayerLootATA).WRITE(),
		solana.Meta(a.MintAuthority),
		solana.Meta(a.CapsMint).WRITE(),
		solana.Meta(a.ServerKey),
		solana.Meta(a.Metadata).WRITE(),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SPLAssociatedTokenAccountProgramID),
		solana.Meta(solana.SysVarInstructionsPubkey),
		solana.Meta(native.MetadataProgramID),
	}
	if !a.Consumed.IsZero() {
		metas = append(metas, solana.Meta(a.Consumed).WRITE())
	}
	return solana.NewInstruction(programID, metas, buf.Bytes()), nil
}

// BuildClaimTransaction assembles the two-instruction redemption: the
// ed25519 verification of v's server signature, then claim_loot. The
// result still needs the player's and loot mint's signatures.
func BuildClaimTransaction(programID solana.PublicKey, a ClaimAccounts, v *voucher.LootVoucher, recent solana.Hash) (*solana.Transaction, error) {
	msg, err := voucher.Encode(v)
	if err != nil {
		return nil, err
	}
	verify, err := sigverify.NewEd25519Instruction(a.ServerKey, msg, v.Signature())
	if err != nil {
		return nil, err
	}
	claim, err := NewClaimLootInstruction(programID, a, v)
	if err != nil {
		return nil, err
	}
	return solana.NewTransaction([]solana.Instruction{verify, claim}, recent, solana.TransactionPayer(a.Player))
}
