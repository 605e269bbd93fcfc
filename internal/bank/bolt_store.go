package bank

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	bolt "go.etcd.io/bbolt"
)

var bucketAccounts = []byte("accounts")

// BoltStore persists accounts in a single bbolt bucket keyed by address.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (creating if needed) the database at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketAccounts)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(key solana.PublicKey) (*Account, error) {
	var out *Account
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAccounts).Get(key[:])
		if raw == nil {
			return nil
		}
		a, err := decodeAccount(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		out = a
		return nil
	})
	return out, err
}

func (s *BoltStore) Commit(writes map[solana.PublicKey]*Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAccounts)
		for k, a := range writes {
			if a.Lamports == 0 {
				if err := b.Delete(k[:]); err != nil {
					return err
				}
				continue
			}
			raw, err := encodeAccount(a)
			if err != nil {
				return err
			}
			if err := b.Put(k[:], raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
