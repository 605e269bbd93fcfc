package voucher

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"
)

// CodecVersion identifies the canonical layout below. Changing the layout
// invalidates every issued, unredeemed voucher, so bump it with any change.
const CodecVersion = 1

var ErrTrailingBytes = errors.New("voucher: trailing bytes after canonical encoding")

// Encode returns the canonical message the issuer signs and the loot
// program re-derives:
//
//	u64 LE loot_id | f64 LE latitude | f64 LE longitude | i64 LE timestamp |
//	u32 LE len(location_hint) | location_hint (UTF-8)
//
// The signature is not part of the message.
func Encode(v *LootVoucher) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := v.encodeFields(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses a canonical message produced by Encode. The returned
// voucher carries a zero signature.
func Decode(b []byte) (*LootVoucher, error) {
	dec := bin.NewBorshDecoder(b)
	v := new(LootVoucher)
	if err := v.decodeFields(dec); err != nil {
		return nil, err
	}
	if dec.HasRemaining() {
		return nil, ErrTrailingBytes
	}
	return v, nil
}

// MarshalWithEncoder writes the on-wire form carried in claim_loot
// instruction data: the canonical fields followed by the 64-byte signature.
func (v LootVoucher) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := v.encodeFields(enc); err != nil {
		return err
	}
	return enc.WriteBytes(v.ServerSignature[:], false)
}

func (v *LootVoucher) UnmarshalWithDecoder(dec *bin.Decoder) error {
	if err := v.decodeFields(dec); err != nil {
		return err
	}
	sig, err := dec.ReadNBytes(64)
	if err != nil {
		return fmt.Errorf("server_signature: %w", err)
	}
	copy(v.ServerSignature[:], sig)
	return nil
}

func (v *LootVoucher) encodeFields(enc *bin.Encoder) error {
	if !utf8.ValidString(v.LocationHint) {
		return ErrInvalidHint
	}
	if err := enc.WriteUint64(v.LootID, bin.LE); err != nil {
		return fmt.Errorf("loot_id: %w", err)
	}
	if err := enc.WriteFloat64(v.Latitude, bin.LE); err != nil {
		return fmt.Errorf("latitude: %w", err)
	}
	if err := enc.WriteFloat64(v.Longitude, bin.LE); err != nil {
		return fmt.Errorf("longitude: %w", err)
	}
	if err := enc.WriteInt64(v.Timestamp, bin.LE); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if err := enc.WriteString(v.LocationHint); err != nil {
		return fmt.Errorf("location_hint: %w", err)
	}
	return nil
}

func (v *LootVoucher) decodeFields(dec *bin.Decoder) (err error) {
	if v.LootID, err = dec.ReadUint64(bin.LE); err != nil {
		return fmt.Errorf("loot_id: %w", err)
	}
	if v.Latitude, err = dec.ReadFloat64(bin.LE); err != nil {
		return fmt.Errorf("latitude: %w", err)
	}
	if v.Longitude, err = dec.ReadFloat64(bin.LE); err != nil {
		return fmt.Errorf("longitude: %w", err)
	}
	if v.Timestamp, err = dec.ReadInt64(bin.LE); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if v.LocationHint, err = dec.ReadString(); err != nil {
		return fmt.Errorf("location_hint: %w", err)
	}
	if !utf8.ValidString(v.LocationHint) {
		return ErrInvalidHint
	}
	return nil
}
