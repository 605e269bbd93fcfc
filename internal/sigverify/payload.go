package sigverify

import (
	"bytes"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Ed25519ProgramID is the native signature-verification program.
var Ed25519ProgramID = solana.MustPublicKeyFromBase58("Ed25519SigVerify111111111111111111111111111")

// Payload layout. Byte 0 is the entry count, byte 1 padding, then one
// 14-byte entry per signature:
//
//	pubkey_offset u16 | signature_offset u16 | message_offset u16 |
//	message_len u16 | pubkey_ix u16 | signature_ix u16 | message_ix u16
//
// An *_ix of 0xFFFF means the bytes live in the verification instruction
// itself.
const (
	HeaderSize      = 16
	EntrySize       = 14
	ThisInstruction = math.MaxUint16

	PubkeyDataOffset    = HeaderSize
	SignatureDataOffset = PubkeyDataOffset + solana.PublicKeyLength
	MessageDataOffset   = SignatureDataOffset + solana.SignatureLength
)

// Entry describes where one (pubkey, signature, message) triple lives.
type Entry struct {
	PubkeyOffset    uint16
	SignatureOffset uint16
	MessageOffset   uint16
	MessageLen      uint16
	PubkeyIx        uint16
	SignatureIx     uint16
	MessageIx       uint16
}

// SelfContained reports whether all three fields reference the carrying
// instruction.
func (e Entry) SelfContained() bool {
	return e.PubkeyIx == ThisInstruction && e.SignatureIx == ThisInstruction && e.MessageIx == ThisInstruction
}

func (e Entry) encode(enc *bin.Encoder) error {
	for _, v := range []uint16{
		e.PubkeyOffset, e.SignatureOffset, e.MessageOffset, e.MessageLen,
		e.PubkeyIx, e.SignatureIx, e.MessageIx,
	} {
		if err := enc.WriteUint16(v, bin.LE); err != nil {
			return err
		}
	}
	return nil
}

func readEntry(dec *bin.Decoder) (e Entry, err error) {
	fields := []*uint16{
		&e.PubkeyOffset, &e.SignatureOffset, &e.MessageOffset, &e.MessageLen,
		&e.PubkeyIx, &e.SignatureIx, &e.MessageIx,
	}
	for _, f := range fields {
		if *f, err = dec.ReadUint16(bin.LE); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

// ParseEntries reads the count byte and every entry header. It does not
// resolve offsets.
func ParseEntries(data []byte) ([]Entry, error) {
	dec := bin.NewBinDecoder(data)
	count, err := dec.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("read count: %w", err)
	}
	if err := dec.SkipBytes(1); err != nil {
		return nil, fmt.Errorf("read padding: %w", err)
	}
	entries := make([]Entry, 0, count)
	for i := 0; i < int(count); i++ {
		e, err := readEntry(dec)
		if err != nil {
			return nil, fmt.Errorf("read entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Field returns data[off:off+size] or OffsetOutOfBounds.
func Field(data []byte, name string, off uint16, size int) ([]byte, error) {
	oob := OffsetOutOfBounds{Field: name, Offset: int(off), Size: size, PayloadLen: len(data)}
	dec := bin.NewBinDecoder(data)
	if err := dec.SkipBytes(uint(off)); err != nil {
		return nil, oob
	}
	b, err := dec.ReadNBytes(size)
	if err != nil {
		return nil, oob
	}
	return b, nil
}

// NewEd25519Instruction builds a single-signature verification instruction
// with pubkey, signature and message inlined after the header.
func NewEd25519Instruction(pub solana.PublicKey, msg []byte, sig solana.Signature) (*solana.GenericInstruction, error) {
	if MessageDataOffset+len(msg) > math.MaxUint16 {
		return nil, fmt.Errorf("sigverify: message too long (%d bytes)", len(msg))
	}
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint8(1); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(0); err != nil {
		return nil, err
	}
	entry := Entry{
		PubkeyOffset:    PubkeyDataOffset,
		SignatureOffset: SignatureDataOffset,
		MessageOffset:   MessageDataOffset,
		MessageLen:      uint16(len(msg)),
		PubkeyIx:        ThisInstruction,
		SignatureIx:     ThisInstruction,
		MessageIx:       ThisInstruction,
	}
	if err := entry.encode(enc); err != nil {
		return nil, err
	}
	for _, b := range [][]byte{pub[:], sig[:], msg} {
		if err := enc.WriteBytes(b, false); err != nil {
			return nil, err
		}
	}
	return solana.NewInstruction(Ed25519ProgramID, solana.AccountMetaSlice{}, buf.Bytes()), nil
}
