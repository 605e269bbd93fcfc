package loot

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/bank"
	"github.com/atomicfizzcaps/fizzcaps-loot/internal/voucher"
)

const (
	ConsumedSeed       = "consumed"
	ConsumedRecordSize = 24
)

var consumedDiscriminator = sighash("account:ConsumedVoucher")

// ConsumedRecord marks a voucher digest as redeemed.
type ConsumedRecord struct {
	LootID     uint64
	RedeemedAt uint64
}

// ConsumedAddress derives the record address for v.
func ConsumedAddress(programID solana.PublicKey, v *voucher.LootVoucher) (solana.PublicKey, uint8, error) {
	digest, err := voucher.Digest(v)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	return solana.FindProgramAddress([][]byte{[]byte(ConsumedSeed), digest[:]}, programID)
}

func (r ConsumedRecord) encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err := enc.WriteBytes(consumedDiscriminator[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(r.LootID, bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(r.RedeemedAt, bin.LE); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadConsumedRecord decodes a record account owned by programID.
func LoadConsumedRecord(programID solana.PublicKey, acct *bank.Account) (*ConsumedRecord, error) {
	if !acct.Owner.Equals(programID) {
		return nil, fmt.Errorf("%w: record owned by %s", bank.ErrIncorrectProgramID, acct.Owner)
	}
	dec := bin.NewBorshDecoder(acct.Data)
	disc, err := dec.ReadNBytes(len(consumedDiscriminator))
	if err != nil || !bytes.Equal(disc, consumedDiscriminator[:]) {
		return nil, fmt.Errorf("%w: not a consumed-voucher record", bank.ErrInvalidAccountData)
	}
	var r ConsumedRecord
	if r.LootID, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrInvalidAccountData, err)
	}
	if r.RedeemedAt, err = dec.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("%w: %v", bank.ErrInvalidAccountData, err)
	}
	return &r, nil
}
