// Package sysvar serializes a transaction's instruction list into the
// instructions sysvar account and reads it back for introspection.
//
// Layout (little endian):
//
//	u16 count
//	u16 offset[count]
//	per instruction, at its offset:
//	    u16 num_accounts
//	    num_accounts × (u8 flags, [32]byte pubkey)   flags: 1 = signer, 2 = writable
//	    [32]byte program_id
//	    u16 data_len
//	    data
//	u16 current_index   (last two bytes)
package sysvar

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	flagSigner   = 1 << 0
	flagWritable = 1 << 1
)

var (
	ErrNotInstructionsSysvar = errors.New("sysvar: account is not the instructions sysvar")
	ErrIndexOutOfRange       = errors.New("sysvar: instruction index out of range")
	ErrTooManyInstructions   = errors.New("sysvar: too many instructions")
	ErrTruncated             = errors.New("sysvar: data truncated")
)

// Instruction is one entry of the serialized instruction list.
type Instruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.AccountMeta
	Data      []byte
}

// Serialize encodes ixs in the sysvar layout with the current index set to 0.
func Serialize(ixs []Instruction) ([]byte, error) {
	if len(ixs) > math.MaxUint16 {
		return nil, ErrTooManyInstructions
	}
	bodies := make([][]byte, len(ixs))
	for i := range ixs {
		b, err := encodeInstruction(&ixs[i])
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		bodies[i] = b
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint16(uint16(len(ixs)), bin.LE); err != nil {
		return nil, err
	}
	offset := 2 + 2*len(ixs)
	for _, b := range bodies {
		if offset > math.MaxUint16 {
			return nil, ErrTooManyInstructions
		}
		if err := enc.WriteUint16(uint16(offset), bin.LE); err != nil {
			return nil, err
		}
		offset += len(b)
	}
	for _, b := range bodies {
		if err := enc.WriteBytes(b, false); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteUint16(0, bin.LE); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeInstruction(ix *Instruction) ([]byte, error) {
	if len(ix.Accounts) > math.MaxUint16 || len(ix.Data) > math.MaxUint16 {
		return nil, ErrTooManyInstructions
	}
	buf := new(bytes.Buffer)
	enc := bin.NewBinEncoder(buf)
	if err := enc.WriteUint16(uint16(len(ix.Accounts)), bin.LE); err != nil {
		return nil, err
	}
	for _, meta := range ix.Accounts {
		var flags byte
		if meta.IsSigner {
			flags |= flagSigner
		}
		if meta.IsWritable {
			flags |= flagWritable
		}
		if err := enc.WriteByte(flags); err != nil {
			return nil, err
		}
		if err := enc.WriteBytes(meta.PublicKey[:], false); err != nil {
			return nil, err
		}
	}
	if err := enc.WriteBytes(ix.ProgramID[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint16(uint16(len(ix.Data)), bin.LE); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(ix.Data, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// StoreCurrentIndex writes idx into the trailing current-index slot.
func StoreCurrentIndex(data []byte, idx uint16) error {
	if len(data) < 2 {
		return ErrTruncated
	}
	bin.LE.PutUint16(data[len(data)-2:], idx)
	return nil
}

// Reader gives bounds-checked access to serialized instructions sysvar data.
type Reader struct {
	data []byte
}

// NewReader refuses any account other than the instructions sysvar so a
// caller cannot be handed a forged instruction list.
func NewReader(key solana.PublicKey, data []byte) (*Reader, error) {
	if !key.Equals(solana.SysVarInstructionsPubkey) {
		return nil, ErrNotInstructionsSysvar
	}
	if len(data) < 4 {
		return nil, ErrTruncated
	}
	return &Reader{data: data}, nil
}

// CurrentIndex returns the index of the instruction being executed.
func (r *Reader) CurrentIndex() (uint16, error) {
	return bin.LE.Uint16(r.data[len(r.data)-2:]), nil
}

// Len returns the number of serialized instructions.
func (r *Reader) Len() (uint16, error) {
	n, err := bin.NewBinDecoder(r.data).ReadUint16(bin.LE)
	if err != nil {
		return 0, fmt.Errorf("%w: count", ErrTruncated)
	}
	return n, nil
}

// InstructionAt decodes the instruction at index i.
func (r *Reader) InstructionAt(i uint16) (*Instruction, error) {
	n, err := r.Len()
	if err != nil {
		return nil, err
	}
	if i >= n {
		return nil, ErrIndexOutOfRange
	}

	dec := bin.NewBinDecoder(r.data)
	if err := dec.SkipBytes(uint(2 + 2*int(i))); err != nil {
		return nil, fmt.Errorf("%w: offset table", ErrTruncated)
	}
	offset, err := dec.ReadUint16(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("%w: offset table", ErrTruncated)
	}

	dec = bin.NewBinDecoder(r.data)
	if err := dec.SkipBytes(uint(offset)); err != nil {
		return nil, fmt.Errorf("%w: instruction %d", ErrTruncated, i)
	}
	ix, err := decodeInstruction(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: instruction %d: %v", ErrTruncated, i, err)
	}
	return ix, nil
}

func decodeInstruction(dec *bin.Decoder) (*Instruction, error) {
	numAccounts, err := dec.ReadUint16(bin.LE)
	if err != nil {
		return nil, err
	}
	ix := &Instruction{Accounts: make([]solana.AccountMeta, 0, numAccounts)}
	for j := 0; j < int(numAccounts); j++ {
		flags, err := dec.ReadByte()
		if err != nil {
			return nil, err
		}
		key, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return nil, err
		}
		ix.Accounts = append(ix.Accounts, solana.AccountMeta{
			PublicKey:  solana.PublicKeyFromBytes(key),
			IsSigner:   flags&flagSigner != 0,
			IsWritable: flags&flagWritable != 0,
		})
	}
	pid, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return nil, err
	}
	ix.ProgramID = solana.PublicKeyFromBytes(pid)

	dataLen, err := dec.ReadUint16(bin.LE)
	if err != nil {
		return nil, err
	}
	data, err := dec.ReadNBytes(int(dataLen))
	if err != nil {
		return nil, err
	}
	ix.Data = append([]byte(nil), data...)
	return ix, nil
}
