package bank

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/syndtr/goleveldb/leveldb"
)

var accountPrefix = []byte("acct:")

// LevelStore persists accounts in LevelDB. A commit is one write batch.
type LevelStore struct {
	db *leveldb.DB
}

func OpenLevelStore(dir string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB: %w", err)
	}
	return &LevelStore{db: db}, nil
}

func levelKey(key solana.PublicKey) []byte {
	return append(append([]byte(nil), accountPrefix...), key[:]...)
}

func (s *LevelStore) Get(key solana.PublicKey) (*Account, error) {
	raw, err := s.db.Get(levelKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeAccount(raw)
}

func (s *LevelStore) Commit(writes map[solana.PublicKey]*Account) error {
	batch := new(leveldb.Batch)
	for k, a := range writes {
		if a.Lamports == 0 {
			batch.Delete(levelKey(k))
			continue
		}
		raw, err := encodeAccount(a)
		if err != nil {
			return err
		}
		batch.Put(levelKey(k), raw)
	}
	return s.db.Write(batch, nil)
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}
