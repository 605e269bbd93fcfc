package loot

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/native"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/sigverify"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/sysvar"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/voucher"
)

var accountNames = [...]string{
	"player",
	"player_caps_ata",
	"loot_mint",
	"player_loot_ata",
	"loot_mint_authority",
	"caps_mint",
	"server_key",
	"loot_metadata",
	"system_program",
	"token_program",
	"associated_token_program",
	"instructions_sysvar",
	"metadata_program",
	"consumed_record",
}

var (
	writableAccounts = map[int]bool{
		idxPlayer: true, idxPlayerCapsATA: true, idxLootMint: true, idxPlayerLootATA: true,
		idxCapsMint: true, idxMetadata: true, idxConsumed: true,
	}
	signerAccounts = map[int]bool{idxPlayer: true, idxLootMint: true}
)

func (p *Program) claim(ctx *bank.InvokeContext, v *voucher.LootVoucher) error {
	a, err := p.validate(ctx, v)
	if err != nil {
		return err
	}
	ixAcct, err := ctx.Account(idxInstructions)
	if err != nil {
		return err
	}
	reader, err := sysvar.NewReader(solana.SysVarInstructionsPubkey, ixAcct.Data)
	if err != nil {
		return err
	}
	if _, err := sigverify.RequireSibling(reader); err != nil {
		return err
	}
	if err := p.initLootMint(ctx, a); err != nil {
		return err
	}

	// BurnFee
	burn := token.NewBurnInstruction(FeeAmount, a.PlayerCapsATA, a.CapsMint, a.Player, nil).Build()
	if err := ctx.Invoke(burn); err != nil {
		return fmt.Errorf("burn fee: %w", err)
	}

	// VerifyVoucher
	msg, err := voucher.Encode(v)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
	}
	if err := sigverify.Verify(reader, p.serverKey, msg, v.Signature()); err != nil {
		return err
	}
	if p.replayGuard {
		if err := p.consume(ctx, a, v); err != nil {
			return err
		}
	}

	// MintAsset
	seeds := p.auth.MintAuthority.SignerSeeds()
	mint := token.NewMintToInstruction(1, a.LootMint, a.PlayerLootATA, a.MintAuthority, nil).Build()
	if err := ctx.Invoke(mint, seeds); err != nil {
		return fmt.Errorf("mint asset: %w", err)
	}

	// AttachMetadata
	create, err := native.NewCreateV1Instruction(native.CreateV1Accounts{
		Metadata:              a.Metadata,
		Mint:                  a.LootMint,
		MintSigner:            true,
		Authority:             a.MintAuthority,
		Payer:                 a.Player,
		UpdateAuthority:       a.MintAuthority,
		UpdateAuthoritySigner: true,
	}, native.AssetData{
		Name:                 AssetName(v),
		Symbol:               Symbol,
		URI:                  AssetURI(v.LootID),
		SellerFeeBasisPoints: 0,
		Creators:             []native.Creator{},
		PrimarySaleHappened:  true,
		IsMutable:            false,
		TokenStandard:        native.NonFungible,
		Collection:           &native.Collection{Verified: false, Key: solana.PublicKey{}},
	})
	if err != nil {
		return err
	}
	if err := ctx.Invoke(create, seeds); err != nil {
		return fmt.Errorf("attach metadata: %w", err)
	}

	ctx.Logf("Loot claimed by %s at (%v, %v)!", a.Player, v.Latitude, v.Longitude)
	p.log.Debug("loot claimed",
		zap.Uint64("loot_id", v.LootID),
		zap.Stringer("player", a.Player),
		zap.Stringer("mint", a.LootMint),
		zap.Uint64("slot", ctx.Slot()))
	return nil
}

// validate checks every account constraint and returns the resolved keys.
func (p *Program) validate(ctx *bank.InvokeContext, v *voucher.LootVoucher) (ClaimAccounts, error) {
	need := numClaimAccounts
	if p.replayGuard {
		need++
	}
	if n := ctx.NumAccounts(); n < need {
		return ClaimAccounts{}, constraint(accountNames[n], AccountNotEnoughKeys, "%d of %d accounts passed", n, need)
	}

	keys := make([]solana.PublicKey, need)
	for i := range keys {
		m, err := ctx.Meta(i)
		if err != nil {
			return ClaimAccounts{}, err
		}
		if writableAccounts[i] && !m.IsWritable {
			return ClaimAccounts{}, constraint(accountNames[i], ConstraintMut, "must be writable")
		}
		if signerAccounts[i] && !m.IsSigner {
			return ClaimAccounts{}, constraint(accountNames[i], AccountNotSigner, "must sign")
		}
		keys[i] = m.PublicKey
	}
	a := ClaimAccounts{
		Player:        keys[idxPlayer],
		PlayerCapsATA: keys[idxPlayerCapsATA],
		LootMint:      keys[idxLootMint],
		PlayerLootATA: keys[idxPlayerLootATA],
		MintAuthority: keys[idxMintAuthority],
		CapsMint:      keys[idxCapsMint],
		ServerKey:     keys[idxServerKey],
		Metadata:      keys[idxMetadata],
	}

	metadata, _, err := native.MetadataAddress(a.LootMint)
	if err != nil {
		return ClaimAccounts{}, err
	}
	pinned := []struct {
		idx  int
		want solana.PublicKey
		kind ConstraintKind
	}{
		{idxMintAuthority, p.auth.MintAuthority.Address, ConstraintSeeds},
		{idxCapsMint, p.auth.CapsMint.Address, ConstraintSeeds},
		{idxServerKey, p.serverKey, ConstraintAddress},
		{idxMetadata, metadata, ConstraintSeeds},
		{idxSystemProgram, solana.SystemProgramID, InvalidProgramID},
		{idxTokenProgram, solana.TokenProgramID, InvalidProgramID},
		{idxATAProgram, solana.SPLAssociatedTokenAccountProgramID, InvalidProgramID},
		{idxInstructions, solana.SysVarInstructionsPubkey, ConstraintAddress},
		{idxMetadataProgram, native.MetadataProgramID, ConstraintAddress},
	}
	for _, c := range pinned {
		if !keys[c.idx].Equals(c.want) {
			return ClaimAccounts{}, constraint(accountNames[c.idx], c.kind, "got %s, want %s", keys[c.idx], c.want)
		}
	}

	if err := p.checkCapsATA(ctx, a); err != nil {
		return ClaimAccounts{}, err
	}
	lootATA, _, err := solana.FindAssociatedTokenAddress(a.Player, a.LootMint)
	if err != nil {
		return ClaimAccounts{}, err
	}
	if !a.PlayerLootATA.Equals(lootATA) {
		return ClaimAccounts{}, constraint(accountNames[idxPlayerLootATA], ConstraintAssociated, "got %s, want %s", a.PlayerLootATA, lootATA)
	}

	if p.replayGuard {
		a.Consumed = keys[idxConsumed]
		want, _, err := ConsumedAddress(p.id, v)
		if err != nil {
			return ClaimAccounts{}, fmt.Errorf("%w: %v", ErrInstructionDidNotDeserialize, err)
		}
		if !a.Consumed.Equals(want) {
			return ClaimAccounts{}, constraint(accountNames[idxConsumed], ConstraintSeeds, "got %s, want %s", a.Consumed, want)
		}
		rec, err := ctx.Account(idxConsumed)
		if err != nil {
			return ClaimAccounts{}, err
		}
		if rec.Owner.Equals(p.id) {
			return ClaimAccounts{}, ErrVoucherConsumed
		}
	}
	return a, nil
}

// checkCapsATA requires the fee source to be the player's initialized
// associated account for the caps mint.
func (p *Program) checkCapsATA(ctx *bank.InvokeContext, a ClaimAccounts) error {
	name := accountNames[idxPlayerCapsATA]
	acct, err := ctx.Account(idxPlayerCapsATA)
	if err != nil {
		return err
	}
	ta, err := native.LoadTokenAccount(acct)
	switch {
	case err == nil:
	case acct.Owner.Equals(solana.SystemProgramID), errors.Is(err, native.TokenUninitializedState):
		return constraint(name, AccountNotInitialized, "%v", err)
	default:
		return constraint(name, AccountOwnedByWrongProgram, "%v", err)
	}
	if !ta.Mint.Equals(a.CapsMint) {
		return constraint(name, ConstraintTokenMint, "mint %s, want %s", ta.Mint, a.CapsMint)
	}
	if !ta.Owner.Equals(a.Player) {
		return constraint(name, ConstraintTokenOwner, "owner %s, want %s", ta.Owner, a.Player)
	}
	want, _, err := solana.FindAssociatedTokenAddress(a.Player, a.CapsMint)
	if err != nil {
		return err
	}
	if !a.PlayerCapsATA.Equals(want) {
		return constraint(name, ConstraintAssociated, "got %s, want %s", a.PlayerCapsATA, want)
	}
	return nil
}

// initLootMint creates the fresh decimals-0 mint under the PDA authority
// and the player's token account for it.
func (p *Program) initLootMint(ctx *bank.InvokeContext, a ClaimAccounts) error {
	create := system.NewCreateAccountInstruction(
		bank.RentExemptMinimum(native.MintSize), native.MintSize, solana.TokenProgramID,
		a.Player, a.LootMint,
	).Build()
	if err := ctx.Invoke(create); err != nil {
		return fmt.Errorf("create loot mint: %w", err)
	}
	init := token.NewInitializeMint2InstructionBuilder().
		SetDecimals(0).
		SetMintAuthority(a.MintAuthority).
		SetMintAccount(a.LootMint).
		Build()
	if err := ctx.Invoke(init); err != nil {
		return fmt.Errorf("initialize loot mint: %w", err)
	}
	if err := ctx.Invoke(native.NewCreateIdempotentInstruction(a.Player, a.Player, a.LootMint)); err != nil {
		return fmt.Errorf("create player loot account: %w", err)
	}
	return nil
}

func (p *Program) consume(ctx *bank.InvokeContext, a ClaimAccounts, v *voucher.LootVoucher) error {
	digest, err := voucher.Digest(v)
	if err != nil {
		return err
	}
	_, bump, err := ConsumedAddress(p.id, v)
	if err != nil {
		return err
	}
	create := system.NewCreateAccountInstruction(
		bank.RentExemptMinimum(ConsumedRecordSize), ConsumedRecordSize, p.id,
		a.Player, a.Consumed,
	).Build()
	if err := ctx.Invoke(create, [][]byte{[]byte(ConsumedSeed), digest[:], {bump}}); err != nil {
		return fmt.Errorf("create consumed record: %w", err)
	}
	data, err := ConsumedRecord{LootID: v.LootID, RedeemedAt: ctx.Slot()}.encode()
	if err != nil {
		return err
	}
	acct, err := ctx.Account(idxConsumed)
	if err != nil {
		return err
	}
	copy(acct.Data, data)
	return nil
}
