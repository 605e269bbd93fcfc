package voucher

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/gagliardetto/solana-go"
)

// LootVoucher is the server-signed proof that a player found a loot drop.
// ServerSignature covers Encode(v), i.e. every field except itself.
type LootVoucher struct {
	LootID          uint64   `json:"loot_id"`
	Latitude        float64  `json:"latitude"`
	Longitude       float64  `json:"longitude"`
	Timestamp       int64    `json:"timestamp"`
	LocationHint    string   `json:"location_hint"`
	ServerSignature [64]byte `json:"server_signature"`
}

// MaxLocationHintLen keeps the synthesized metadata name under the
// metadata program's name limit.
const MaxLocationHintLen = 64

// Redis key templates
const (
	CooldownKeyFmt = "claim_cooldown:%s" // %s = wallet (base58)
	IssuedKeyFmt   = "voucher:issued:%d" // %d = loot id
)

var (
	ErrInvalidLootID   = errors.New("voucher: loot_id must be >= 1")
	ErrInvalidLocation = errors.New("voucher: coordinates out of range")
	ErrEmptyHint       = errors.New("voucher: location_hint is empty")
	ErrHintTooLong     = fmt.Errorf("voucher: location_hint longer than %d bytes", MaxLocationHintLen)
	ErrInvalidHint     = errors.New("voucher: location_hint is not valid UTF-8")
)

// Signature returns the server signature as a solana.Signature.
func (v *LootVoucher) Signature() solana.Signature {
	return solana.Signature(v.ServerSignature)
}

// Validate checks the fields the issuer is willing to sign.
func (v *LootVoucher) Validate() error {
	if v.LootID == 0 {
		return ErrInvalidLootID
	}
	if math.IsNaN(v.Latitude) || math.IsNaN(v.Longitude) ||
		v.Latitude < -90 || v.Latitude > 90 ||
		v.Longitude < -180 || v.Longitude > 180 {
		return ErrInvalidLocation
	}
	if v.LocationHint == "" {
		return ErrEmptyHint
	}
	if len(v.LocationHint) > MaxLocationHintLen {
		return ErrHintTooLong
	}
	if !utf8.ValidString(v.LocationHint) {
		return ErrInvalidHint
	}
	return nil
}
