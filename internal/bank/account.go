package bank

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	// NativeLoaderID owns every built-in program account.
	NativeLoaderID = solana.MustPublicKeyFromBase58("NativeLoader1111111111111111111111111111111")
	// SysvarOwnerID owns sysvar accounts.
	SysvarOwnerID = solana.MustPublicKeyFromBase58("Sysvar1111111111111111111111111111111111111")
)

// Account is the persisted state behind one address.
type Account struct {
	Lamports   uint64
	Owner      solana.PublicKey
	Executable bool
	Data       []byte
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	cp := *a
	cp.Data = append([]byte(nil), a.Data...)
	return &cp
}

// emptyAccount is what an address that was never written looks like.
func emptyAccount() *Account {
	return &Account{Owner: solana.SystemProgramID}
}

func (a Account) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint64(a.Lamports, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteBytes(a.Owner[:], false); err != nil {
		return err
	}
	if err := enc.WriteBool(a.Executable); err != nil {
		return err
	}
	return enc.WriteBytes(a.Data, true)
}

func (a *Account) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if a.Lamports, err = dec.ReadUint64(bin.LE); err != nil {
		return err
	}
	owner, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return err
	}
	a.Owner = solana.PublicKeyFromBytes(owner)
	if a.Executable, err = dec.ReadBool(); err != nil {
		return err
	}
	data, err := dec.ReadByteSlice()
	if err != nil {
		return err
	}
	a.Data = append([]byte(nil), data...)
	return nil
}

func encodeAccount(a *Account) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := a.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeAccount(raw []byte) (*Account, error) {
	a := new(Account)
	if err := a.UnmarshalWithDecoder(bin.NewBorshDecoder(raw)); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return a, nil
}

// RentExemptMinimum is the balance an account of the given data size must
// hold to be exempt from rent.
func RentExemptMinimum(space uint64) uint64 {
	const (
		accountStorageOverhead = 128
		lamportsPerByteYear    = 3480
		exemptionYears         = 2
	)
	return (space + accountStorageOverhead) * lamportsPerByteYear * exemptionYears
}
