package voucher

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

var ErrBadSignature = errors.New("voucher: signature does not verify")

// Sign signs the canonical encoding with the issuer key and stores the
// signature in v.
func Sign(v *LootVoucher, priv solana.PrivateKey) error {
	msg, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encode voucher: %w", err)
	}
	sig, err := priv.Sign(msg)
	if err != nil {
		return fmt.Errorf("sign voucher: %w", err)
	}
	v.ServerSignature = sig
	return nil
}

// Verify checks the stored signature against pub.
func Verify(v *LootVoucher, pub solana.PublicKey) error {
	msg, err := Encode(v)
	if err != nil {
		return fmt.Errorf("encode voucher: %w", err)
	}
	if !pub.Verify(msg, v.Signature()) {
		return ErrBadSignature
	}
	return nil
}

// Digest is keccak256 over the canonical encoding. It identifies a voucher
// independently of its signature.
func Digest(v *LootVoucher) ([32]byte, error) {
	msg, err := Encode(v)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encode voucher: %w", err)
	}
	return crypto.Keccak256Hash(msg), nil
}
