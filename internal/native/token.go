package native

import (
	"bytes"
	"fmt"
	"math/bits"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
)

const (
	MintSize    = 82
	AccountSize = 165
)

// TokenProgram implements the SPL token instructions the redemption flow
// uses: mint and account initialization, mint-to, burn and transfer.
type TokenProgram struct{}

func (TokenProgram) Process(ctx *bank.InvokeContext, data []byte) error {
	inst, err := token.DecodeInstruction(nil, data)
	if err != nil {
		return fmt.Errorf("%w: %v", TokenInvalidInstruction, err)
	}
	switch ix := inst.Impl.(type) {
	case *token.InitializeMint2:
		return initializeMint(ctx, *ix.Decimals, *ix.MintAuthority, ix.FreezeAuthority)
	case *token.InitializeAccount3:
		return initializeAccount(ctx, *ix.Owner)
	case *token.MintTo:
		return mintTo(ctx, *ix.Amount)
	case *token.Burn:
		return burn(ctx, *ix.Amount)
	case *token.Transfer:
		return transferTokens(ctx, *ix.Amount)
	default:
		return fmt.Errorf("%w: unsupported token instruction %d", TokenInvalidInstruction, inst.TypeID.Uint8())
	}
}

// LoadMint decodes an initialized mint owned by the token program.
func LoadMint(acct *bank.Account) (*token.Mint, error) {
	if !acct.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("%w: mint owned by %s", bank.ErrIncorrectProgramID, acct.Owner)
	}
	if len(acct.Data) != MintSize {
		return nil, TokenInvalidMint
	}
	var m token.Mint
	if err := m.UnmarshalWithDecoder(bin.NewBinDecoder(acct.Data)); err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrInvalidAccountData, err)
	}
	if !m.IsInitialized {
		return nil, TokenUninitializedState
	}
	return &m, nil
}

// LoadTokenAccount decodes an initialized token account owned by the
// token program.
func LoadTokenAccount(acct *bank.Account) (*token.Account, error) {
	if !acct.Owner.Equals(solana.TokenProgramID) {
		return nil, fmt.Errorf("%w: token account owned by %s", bank.ErrIncorrectProgramID, acct.Owner)
	}
	if len(acct.Data) != AccountSize {
		return nil, fmt.Errorf("%w: token account is %d bytes", bank.ErrInvalidAccountData, len(acct.Data))
	}
	var ta token.Account
	if err := ta.UnmarshalWithDecoder(bin.NewBinDecoder(acct.Data)); err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrInvalidAccountData, err)
	}
	if ta.State == token.Uninitialized {
		return nil, TokenUninitializedState
	}
	return &ta, nil
}

// NewMintAccount returns a rent-exempt, token-owned account holding m.
func NewMintAccount(m token.Mint) (*bank.Account, error) {
	data, err := encodeState(m, MintSize)
	if err != nil {
		return nil, err
	}
	return &bank.Account{
		Lamports: bank.RentExemptMinimum(MintSize),
		Owner:    solana.TokenProgramID,
		Data:     data,
	}, nil
}

// NewTokenAccount returns a rent-exempt, token-owned account holding ta.
func NewTokenAccount(ta token.Account) (*bank.Account, error) {
	data, err := encodeState(ta, AccountSize)
	if err != nil {
		return nil, err
	}
	return &bank.Account{
		Lamports: bank.RentExemptMinimum(AccountSize),
		Owner:    solana.TokenProgramID,
		Data:     data,
	}, nil
}

func encodeState(v bin.BinaryMarshaler, size int) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := v.MarshalWithEncoder(bin.NewBinEncoder(buf)); err != nil {
		return nil, err
	}
	if buf.Len() != size {
		return nil, fmt.Errorf("token state encoded to %d bytes, want %d", buf.Len(), size)
	}
	return buf.Bytes(), nil
}

func storeState(acct *bank.Account, v bin.BinaryMarshaler) error {
	data, err := encodeState(v, len(acct.Data))
	if err != nil {
		return err
	}
	copy(acct.Data, data)
	return nil
}

// tokenOwned checks the account belongs to the running token program, is
// sized for its state and is rent exempt.
func tokenOwned(ctx *bank.InvokeContext, acct *bank.Account, size int) error {
	if !acct.Owner.Equals(ctx.ProgramID()) {
		return fmt.Errorf("%w: owned by %s", bank.ErrIncorrectProgramID, acct.Owner)
	}
	if len(acct.Data) != size {
		return fmt.Errorf("%w: %d bytes, want %d", bank.ErrInvalidAccountData, len(acct.Data), size)
	}
	if acct.Lamports < bank.RentExemptMinimum(uint64(size)) {
		return TokenNotRentExempt
	}
	return nil
}

func initializeMint(ctx *bank.InvokeContext, decimals uint8, authority solana.PublicKey, freeze *solana.PublicKey) error {
	acct, err := ctx.Account(0)
	if err != nil {
		return err
	}
	if err := tokenOwned(ctx, acct, MintSize); err != nil {
		return err
	}
	if !zeroed(acct.Data) {
		return TokenAlreadyInUse
	}
	m := token.Mint{
		MintAuthority:   authority.ToPointer(),
		Decimals:        decimals,
		IsInitialized:   true,
		FreezeAuthority: freeze,
	}
	return storeState(acct, m)
}

func initializeAccount(ctx *bank.InvokeContext, owner solana.PublicKey) error {
	acct, err := ctx.Account(0)
	if err != nil {
		return err
	}
	if err := tokenOwned(ctx, acct, AccountSize); err != nil {
		return err
	}
	if !zeroed(acct.Data) {
		return TokenAlreadyInUse
	}
	mintKey, err := ctx.Key(1)
	if err != nil {
		return err
	}
	mintAcct, err := ctx.Account(1)
	if err != nil {
		return err
	}
	if _, err := LoadMint(mintAcct); err != nil {
		return TokenInvalidMint
	}
	ta := token.Account{
		Mint:  mintKey,
		Owner: owner,
		State: token.Initialized,
	}
	return storeState(acct, ta)
}

// authorize checks that the i-th account is want and signed.
func authorize(ctx *bank.InvokeContext, i int, want solana.PublicKey) error {
	m, err := ctx.Meta(i)
	if err != nil {
		return err
	}
	if !m.PublicKey.Equals(want) {
		return TokenOwnerMismatch
	}
	if !m.IsSigner {
		return fmt.Errorf("%w: %s", bank.ErrMissingRequiredSignature, m.PublicKey)
	}
	return nil
}

func mintTo(ctx *bank.InvokeContext, amount uint64) error {
	mintKey, err := ctx.Key(0)
	if err != nil {
		return err
	}
	mintAcct, err := ctx.Account(0)
	if err != nil {
		return err
	}
	destAcct, err := ctx.Account(1)
	if err != nil {
		return err
	}
	dest, err := LoadTokenAccount(destAcct)
	if err != nil {
		return err
	}
	if dest.State == token.Frozen {
		return TokenAccountFrozen
	}
	if !dest.Mint.Equals(mintKey) {
		return TokenMintMismatch
	}
	m, err := LoadMint(mintAcct)
	if err != nil {
		return err
	}
	if m.MintAuthority == nil {
		return TokenFixedSupply
	}
	if err := authorize(ctx, 2, *m.MintAuthority); err != nil {
		return err
	}

	var carry uint64
	if dest.Amount, carry = bits.Add64(dest.Amount, amount, 0); carry != 0 {
		return TokenOverflow
	}
	if m.Supply, carry = bits.Add64(m.Supply, amount, 0); carry != 0 {
		return TokenOverflow
	}
	if err := storeState(destAcct, *dest); err != nil {
		return err
	}
	return storeState(mintAcct, *m)
}

func burn(ctx *bank.InvokeContext, amount uint64) error {
	srcAcct, err := ctx.Account(0)
	if err != nil {
		return err
	}
	mintKey, err := ctx.Key(1)
	if err != nil {
		return err
	}
	mintAcct, err := ctx.Account(1)
	if err != nil {
		return err
	}
	src, err := LoadTokenAccount(srcAcct)
	if err != nil {
		return err
	}
	if src.State == token.Frozen {
		return TokenAccountFrozen
	}
	if src.Amount < amount {
		return TokenInsufficientFunds
	}
	if !src.Mint.Equals(mintKey) {
		return TokenMintMismatch
	}
	m, err := LoadMint(mintAcct)
	if err != nil {
		return err
	}
	if err := authorize(ctx, 2, src.Owner); err != nil {
		return err
	}
	if m.Supply < amount {
		return TokenOverflow
	}

	src.Amount -= amount
	m.Supply -= amount
	if err := storeState(srcAcct, *src); err != nil {
		return err
	}
	return storeState(mintAcct, *m)
}

func transferTokens(ctx *bank.InvokeContext, amount uint64) error {
	srcAcct, err := ctx.Account(0)
	if err != nil {
		return err
	}
	destAcct, err := ctx.Account(1)
	if err != nil {
		return err
	}
	src, err := LoadTokenAccount(srcAcct)
	if err != nil {
		return err
	}
	dest, err := LoadTokenAccount(destAcct)
	if err != nil {
		return err
	}
	if src.State == token.Frozen || dest.State == token.Frozen {
		return TokenAccountFrozen
	}
	if src.Amount < amount {
		return TokenInsufficientFunds
	}
	if !src.Mint.Equals(dest.Mint) {
		return TokenMintMismatch
	}
	if err := authorize(ctx, 2, src.Owner); err != nil {
		return err
	}

	srcKey, _ := ctx.Key(0)
	destKey, _ := ctx.Key(1)
	if srcKey.Equals(destKey) {
		return nil
	}
	var carry uint64
	src.Amount -= amount
	if dest.Amount, carry = bits.Add64(dest.Amount, amount, 0); carry != 0 {
		return TokenOverflow
	}
	if err := storeState(srcAcct, *src); err != nil {
		return err
	}
	return storeState(destAcct, *dest)
}

func zeroed(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
