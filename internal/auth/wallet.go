package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var (
	ErrInvalidWallet    = errors.New("auth: invalid wallet address")
	ErrInvalidSignature = errors.New("auth: invalid signature")
)

// ParseWallet decodes a base58 ed25519 wallet address.
func ParseWallet(addr string) (solana.PublicKey, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return solana.PublicKey{}, fmt.Errorf("%w: %d bytes", ErrInvalidWallet, len(raw))
	}
	return solana.PublicKeyFromBytes(raw), nil
}

// VerifyMessage checks a base58 signature by wallet over the raw message
// bytes, the form produced by a wallet's signMessage.
func VerifyMessage(wallet solana.PublicKey, msg []byte, sigB58 string) error {
	raw, err := base58.Decode(sigB58)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(raw) != ed25519.SignatureSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSignature, len(raw))
	}
	if !wallet.Verify(msg, solana.SignatureFromBytes(raw)) {
		return ErrInvalidSignature
	}
	return nil
}

// SignMessage is the client side of VerifyMessage.
func SignMessage(priv solana.PrivateKey, msg []byte) (string, error) {
	sig, err := priv.Sign(msg)
	if err != nil {
		return "", err
	}
	return base58.Encode(sig[:]), nil
}
