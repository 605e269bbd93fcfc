package native

import (
	"context"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	ata "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/sigverify"
)

type env struct {
	bank  *bank.Bank
	payer solana.PrivateKey
	seq   byte
}

func newEnv(t *testing.T) *env {
	t.Helper()
	b := bank.New(bank.NewMemStore(), zap.NewNop())
	RegisterAll(b)
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	_, err = b.Airdrop(payer.PublicKey(), 10_000_000_000)
	require.NoError(t, err)
	return &env{bank: b, payer: payer}
}

func (e *env) run(t *testing.T, extra []solana.PrivateKey, ixs ...solana.Instruction) error {
	t.Helper()
	// A fresh blockhash keeps repeated instructions from colliding on
	// signature.
	e.seq++
	tx, err := solana.NewTransaction(ixs, solana.Hash{e.seq}, solana.TransactionPayer(e.payer.PublicKey()))
	require.NoError(t, err)
	keys := append([]solana.PrivateKey{e.payer}, extra...)
	_, err = tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
		for i := range keys {
			if keys[i].PublicKey().Equals(k) {
				return &keys[i]
			}
		}
		return nil
	})
	require.NoError(t, err)
	_, err = e.bank.Process(context.Background(), tx)
	return err
}

func (e *env) account(t *testing.T, key solana.PublicKey) *bank.Account {
	t.Helper()
	a, err := e.bank.GetAccount(key)
	require.NoError(t, err)
	return a
}

// mint creates a decimals-0 mint with the payer as authority.
func (e *env) mint(t *testing.T) solana.PublicKey {
	t.Helper()
	m := solana.NewWallet().PrivateKey
	err := e.run(t, []solana.PrivateKey{m},
		system.NewCreateAccountInstruction(bank.RentExemptMinimum(MintSize), MintSize, solana.TokenProgramID,
			e.payer.PublicKey(), m.PublicKey()).Build(),
		token.NewInitializeMint2InstructionBuilder().
			SetDecimals(0).
			SetMintAuthority(e.payer.PublicKey()).
			SetMintAccount(m.PublicKey()).
			Build(),
	)
	require.NoError(t, err)
	return m.PublicKey()
}

func (e *env) ata(t *testing.T, wallet, mint solana.PublicKey) solana.PublicKey {
	t.Helper()
	require.NoError(t, e.run(t, nil, NewCreateIdempotentInstruction(e.payer.PublicKey(), wallet, mint)))
	addr, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	return addr
}

func (e *env) balance(t *testing.T, key solana.PublicKey) uint64 {
	t.Helper()
	ta, err := LoadTokenAccount(e.account(t, key))
	require.NoError(t, err)
	return ta.Amount
}

func requireCode(t *testing.T, err error, want uint32) {
	t.Helper()
	require.Error(t, err)
	code, ok := bank.ErrorCode(err)
	require.True(t, ok, "no code in %v", err)
	require.Equal(t, want, code)
}

// ── System ────────────────────────────────────────────────────────────────────

func TestSystem_CreateAccountAndTransfer(t *testing.T) {
	e := newEnv(t)
	fresh := solana.NewWallet().PrivateKey
	dest := solana.NewWallet().PublicKey()

	require.NoError(t, e.run(t, []solana.PrivateKey{fresh},
		system.NewCreateAccountInstruction(5000, 16, solana.TokenProgramID, e.payer.PublicKey(), fresh.PublicKey()).Build(),
		system.NewTransferInstruction(700, e.payer.PublicKey(), dest).Build(),
	))

	created := e.account(t, fresh.PublicKey())
	require.Equal(t, uint64(5000), created.Lamports)
	require.Equal(t, solana.TokenProgramID, created.Owner)
	require.Len(t, created.Data, 16)
	require.Equal(t, uint64(700), e.account(t, dest).Lamports)
	require.Equal(t, uint64(10_000_000_000-5700), e.account(t, e.payer.PublicKey()).Lamports)
}

func TestSystem_CreateAccountAlreadyInUse(t *testing.T) {
	e := newEnv(t)
	fresh := solana.NewWallet().PrivateKey
	create := system.NewCreateAccountInstruction(5000, 0, solana.SystemProgramID, e.payer.PublicKey(), fresh.PublicKey()).Build()
	require.NoError(t, e.run(t, []solana.PrivateKey{fresh}, create))

	again := system.NewCreateAccountInstruction(6000, 0, solana.SystemProgramID, e.payer.PublicKey(), fresh.PublicKey()).Build()
	require.ErrorIs(t, e.run(t, []solana.PrivateKey{fresh}, again), bank.ErrAccountAlreadyInUse)
}

func TestSystem_TransferInsufficient(t *testing.T) {
	e := newEnv(t)
	err := e.run(t, nil, system.NewTransferInstruction(20_000_000_000, e.payer.PublicKey(), solana.NewWallet().PublicKey()).Build())
	require.ErrorIs(t, err, bank.ErrInsufficientLamports)
}

// ── Token ─────────────────────────────────────────────────────────────────────

func TestToken_MintBurnTransfer(t *testing.T) {
	e := newEnv(t)
	mint := e.mint(t)
	mine := e.ata(t, e.payer.PublicKey(), mint)
	other := solana.NewWallet().PublicKey()
	theirs := e.ata(t, other, mint)

	require.NoError(t, e.run(t, nil, token.NewMintToInstruction(100, mint, mine, e.payer.PublicKey(), nil).Build()))
	require.NoError(t, e.run(t, nil, token.NewBurnInstruction(30, mine, mint, e.payer.PublicKey(), nil).Build()))
	require.NoError(t, e.run(t, nil, token.NewTransferInstruction(20, mine, theirs, e.payer.PublicKey(), nil).Build()))

	require.Equal(t, uint64(50), e.balance(t, mine))
	require.Equal(t, uint64(20), e.balance(t, theirs))
	m, err := LoadMint(e.account(t, mint))
	require.NoError(t, err)
	require.Equal(t, uint64(70), m.Supply)
}

func TestToken_BurnErrors(t *testing.T) {
	e := newEnv(t)
	mint := e.mint(t)
	otherMint := e.mint(t)
	mine := e.ata(t, e.payer.PublicKey(), mint)
	require.NoError(t, e.run(t, nil, token.NewMintToInstruction(10, mint, mine, e.payer.PublicKey(), nil).Build()))

	t.Run("insufficient funds", func(t *testing.T) {
		err := e.run(t, nil, token.NewBurnInstruction(11, mine, mint, e.payer.PublicKey(), nil).Build())
		requireCode(t, err, TokenInsufficientFunds.Code())
	})
	t.Run("mint mismatch", func(t *testing.T) {
		err := e.run(t, nil, token.NewBurnInstruction(1, mine, otherMint, e.payer.PublicKey(), nil).Build())
		requireCode(t, err, TokenMintMismatch.Code())
	})
	t.Run("owner mismatch", func(t *testing.T) {
		stranger := solana.NewWallet().PrivateKey
		err := e.run(t, []solana.PrivateKey{stranger}, token.NewBurnInstruction(1, mine, mint, stranger.PublicKey(), nil).Build())
		requireCode(t, err, TokenOwnerMismatch.Code())
	})
	require.Equal(t, uint64(10), e.balance(t, mine))
}

func TestToken_MintToRequiresAuthority(t *testing.T) {
	e := newEnv(t)
	mint := e.mint(t)
	mine := e.ata(t, e.payer.PublicKey(), mint)
	stranger := solana.NewWallet().PrivateKey

	err := e.run(t, []solana.PrivateKey{stranger}, token.NewMintToInstruction(1, mint, mine, stranger.PublicKey(), nil).Build())
	requireCode(t, err, TokenOwnerMismatch.Code())
}

func TestToken_InitializeMintTwice(t *testing.T) {
	e := newEnv(t)
	mint := e.mint(t)
	err := e.run(t, nil, token.NewInitializeMint2InstructionBuilder().
		SetDecimals(0).
		SetMintAuthority(e.payer.PublicKey()).
		SetMintAccount(mint).
		Build())
	requireCode(t, err, TokenAlreadyInUse.Code())
}

func TestNewMintAccount_RoundTrips(t *testing.T) {
	auth := solana.NewWallet().PublicKey()
	acct, err := NewMintAccount(token.Mint{MintAuthority: &auth, Supply: 7, Decimals: 9, IsInitialized: true})
	require.NoError(t, err)
	require.Len(t, acct.Data, MintSize)

	m, err := LoadMint(acct)
	require.NoError(t, err)
	require.Equal(t, auth, *m.MintAuthority)
	require.Equal(t, uint64(7), m.Supply)
	require.Nil(t, m.FreezeAuthority)

	_, err = LoadTokenAccount(acct)
	require.ErrorIs(t, err, bank.ErrInvalidAccountData)
}

// ── Associated token accounts ─────────────────────────────────────────────────

func TestATA_CreateIdempotent(t *testing.T) {
	e := newEnv(t)
	mint := e.mint(t)
	wallet := solana.NewWallet().PublicKey()

	addr := e.ata(t, wallet, mint)
	require.Equal(t, addr, e.ata(t, wallet, mint))

	ta, err := LoadTokenAccount(e.account(t, addr))
	require.NoError(t, err)
	require.Equal(t, wallet, ta.Owner)
	require.Equal(t, mint, ta.Mint)
	require.Equal(t, token.Initialized, ta.State)
	require.Equal(t, bank.RentExemptMinimum(AccountSize), e.account(t, addr).Lamports)

	err = e.run(t, nil, ata.NewCreateInstruction(e.payer.PublicKey(), wallet, mint).Build())
	require.ErrorIs(t, err, bank.ErrAccountAlreadyInUse)
}

func TestATA_RejectsWrongAddress(t *testing.T) {
	e := newEnv(t)
	mint := e.mint(t)
	wallet := solana.NewWallet().PublicKey()

	ix := NewCreateIdempotentInstruction(e.payer.PublicKey(), wallet, mint)
	accts := ix.Accounts()
	accts[1] = solana.Meta(solana.NewWallet().PublicKey()).WRITE()
	err := e.run(t, nil, solana.NewInstruction(ix.ProgramID(), accts, []byte{ataCreateIdempotent}))
	require.ErrorIs(t, err, bank.ErrInvalidSeeds)
}

// ── Ed25519 ───────────────────────────────────────────────────────────────────

func TestEd25519_Precompile(t *testing.T) {
	e := newEnv(t)
	signer := solana.NewWallet().PrivateKey
	msg := []byte("forty-two caps")
	sig, err := signer.Sign(msg)
	require.NoError(t, err)

	good, err := sigverify.NewEd25519Instruction(signer.PublicKey(), msg, sig)
	require.NoError(t, err)
	require.NoError(t, e.run(t, nil, good))

	tampered := sig
	tampered[0] ^= 1
	bad, err := sigverify.NewEd25519Instruction(signer.PublicKey(), msg, tampered)
	require.NoError(t, err)
	require.ErrorIs(t, e.run(t, nil, bad), ErrPrecompileInvalidSignature)
}

func TestEd25519_CrossInstructionOffsets(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	msg := []byte("sibling bytes")
	sig := ed25519.Sign(priv, msg)

	// pubkey and signature inline, message in instruction 1
	data := make([]byte, sigverify.MessageDataOffset)
	data[0] = 1
	put := func(off int, v uint16) { data[off], data[off+1] = byte(v), byte(v>>8) }
	put(2, sigverify.PubkeyDataOffset)
	put(4, sigverify.SignatureDataOffset)
	put(6, 0)
	put(8, uint16(len(msg)))
	put(10, sigverify.ThisInstruction)
	put(12, sigverify.ThisInstruction)
	put(14, 1)
	copy(data[sigverify.PubkeyDataOffset:], pub)
	copy(data[sigverify.SignatureDataOffset:], sig)

	require.NoError(t, Ed25519Program{}.Verify(data, [][]byte{data, msg}))
	require.ErrorIs(t, Ed25519Program{}.Verify(data, [][]byte{data}), ErrPrecompileInvalidDataOffsets)
	require.ErrorIs(t, Ed25519Program{}.Verify([]byte{1}, nil), ErrPrecompileInvalidDataSize)
}

// ── Metadata ──────────────────────────────────────────────────────────────────

func createMetadataIx(t *testing.T, e *env, mint solana.PublicKey, data AssetData) *solana.GenericInstruction {
	t.Helper()
	addr, _, err := MetadataAddress(mint)
	require.NoError(t, err)
	ix, err := NewCreateV1Instruction(CreateV1Accounts{
		Metadata:        addr,
		Mint:            mint,
		Authority:       e.payer.PublicKey(),
		Payer:           e.payer.PublicKey(),
		UpdateAuthority: e.payer.PublicKey(),
		SplTokenProgram: solana.TokenProgramID,
	}, data)
	require.NoError(t, err)
	return ix
}

func sampleAsset() AssetData {
	return AssetData{
		Name:                "Fizz Cache #7 @ (1.0000,2.0000) bench",
		Symbol:              "FIZZLOOT",
		URI:                 "https://atomicfizzcaps.xyz/loot/7.json",
		Creators:            []Creator{},
		PrimarySaleHappened: true,
		TokenStandard:       NonFungible,
		Collection:          &Collection{},
	}
}

func TestMetadata_Create(t *testing.T) {
	e := newEnv(t)
	mint := e.mint(t)

	require.NoError(t, e.run(t, nil, createMetadataIx(t, e, mint, sampleAsset())))

	addr, _, err := MetadataAddress(mint)
	require.NoError(t, err)
	md, err := LoadMetadata(e.account(t, addr))
	require.NoError(t, err)
	require.Equal(t, mint, md.Mint)
	require.Equal(t, e.payer.PublicKey(), md.UpdateAuthority)
	require.Equal(t, "FIZZLOOT", md.Symbol)
	require.Equal(t, "https://atomicfizzcaps.xyz/loot/7.json", md.URI)
	require.True(t, md.PrimarySaleHappened)
	require.False(t, md.IsMutable)
	require.NotNil(t, md.TokenStandard)
	require.Equal(t, NonFungible, *md.TokenStandard)
	require.Empty(t, md.Creators)

	err = e.run(t, nil, createMetadataIx(t, e, mint, sampleAsset()))
	requireCode(t, err, MetadataAlreadyInitialized.Code())
}

func TestMetadata_CreateRejects(t *testing.T) {
	e := newEnv(t)
	mint := e.mint(t)

	long := sampleAsset()
	long.Name = strings.Repeat("n", MaxNameLength+1)
	requireCode(t, e.run(t, nil, createMetadataIx(t, e, mint, long)), MetadataNameTooLong.Code())

	badSymbol := sampleAsset()
	badSymbol.Symbol = "FIZZLOOTXYZ"
	requireCode(t, e.run(t, nil, createMetadataIx(t, e, mint, badSymbol)), MetadataSymbolTooLong.Code())

	ix := createMetadataIx(t, e, mint, sampleAsset())
	ix.AccountValues[0] = solana.Meta(solana.NewWallet().PublicKey()).WRITE()
	requireCode(t, e.run(t, nil, ix), MetadataDerivedKeyInvalid.Code())

	stranger := solana.NewWallet().PrivateKey
	ix = createMetadataIx(t, e, mint, sampleAsset())
	ix.AccountValues[3] = solana.Meta(stranger.PublicKey()).SIGNER()
	requireCode(t, e.run(t, []solana.PrivateKey{stranger}, ix), MetadataInvalidMintAuthority.Code())
}
