// Package issuer is the off-ledger voucher service. It signs a LootVoucher
// for an authenticated player once per cooldown window.
package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"

	"github.com/atomicfizzcaps/fizzcaps-loot/internal/voucher"
)

var ErrCooldownActive = errors.New("issuer: cooldown active")

// Signer signs vouchers with the server key and keeps the per-wallet
// cooldown in Redis.
type Signer struct {
	privKey  solana.PrivateKey
	cooldown time.Duration
	rdb      *redis.Client
	now      func() time.Time
}

func NewSigner(privKey solana.PrivateKey, cooldown time.Duration, rdb *redis.Client) *Signer {
	return &Signer{
		privKey:  privKey,
		cooldown: cooldown,
		rdb:      rdb,
		now:      time.Now,
	}
}

func (s *Signer) PublicKey() solana.PublicKey {
	return s.privKey.PublicKey()
}

// Issued is the audit entry recorded for every signed voucher.
type Issued struct {
	Wallet   string               `json:"wallet"`
	IssuedAt int64                `json:"issued_at"`
	Voucher  *voucher.LootVoucher `json:"voucher"`
}

// Issue claims the wallet's cooldown slot, signs v and records it under
// the loot id. A wallet still inside its window gets ErrCooldownActive.
// The slot is released again when signing or recording fails.
func (s *Signer) Issue(ctx context.Context, wallet string, v *voucher.LootVoucher) (err error) {
	if err := v.Validate(); err != nil {
		return err
	}
	// Encode before taking the cooldown slot.
	if _, err := voucher.Encode(v); err != nil {
		return fmt.Errorf("encode voucher: %w", err)
	}

	now := s.now()
	if s.cooldown > 0 {
		key := fmt.Sprintf(voucher.CooldownKeyFmt, wallet)
		set, setErr := s.rdb.SetNX(ctx, key, now.UnixMilli(), s.cooldown).Result()
		if setErr != nil {
			return fmt.Errorf("set cooldown: %w", setErr)
		}
		if !set {
			return ErrCooldownActive
		}
		defer func() {
			if err == nil {
				return
			}
			if delErr := s.rdb.Del(context.WithoutCancel(ctx), key).Err(); delErr != nil {
				err = errors.Join(err, fmt.Errorf("release cooldown: %w", delErr))
			}
		}()
	}

	if err := voucher.Sign(v, s.privKey); err != nil {
		return err
	}

	raw, err := json.Marshal(Issued{Wallet: wallet, IssuedAt: now.Unix(), Voucher: v})
	if err != nil {
		return fmt.Errorf("marshal voucher: %w", err)
	}
	issuedKey := fmt.Sprintf(voucher.IssuedKeyFmt, v.LootID)
	if err := s.rdb.RPush(ctx, issuedKey, string(raw)).Err(); err != nil {
		return fmt.Errorf("record voucher: %w", err)
	}
	return nil
}

// CooldownRemaining reports how long wallet must still wait.
func (s *Signer) CooldownRemaining(ctx context.Context, wallet string) (time.Duration, error) {
	ttl, err := s.rdb.PTTL(ctx, fmt.Sprintf(voucher.CooldownKeyFmt, wallet)).Result()
	if err != nil {
		return 0, fmt.Errorf("cooldown ttl: %w", err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}
