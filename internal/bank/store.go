package bank

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Store persists committed accounts. Get returns (nil, nil) for an address
// that holds nothing. Commit applies a whole transaction's writes at once;
// a zero-lamport account in the batch is deleted.
type Store interface {
	Get(key solana.PublicKey) (*Account, error)
	Commit(writes map[solana.PublicKey]*Account) error
	Close() error
}

// MemStore keeps accounts in a map. Used by tests and the memory ledger driver.
type MemStore struct {
	mu       sync.RWMutex
	accounts map[solana.PublicKey]*Account
}

func NewMemStore() *MemStore {
	return &MemStore{accounts: make(map[solana.PublicKey]*Account)}
}

func (s *MemStore) Get(key solana.PublicKey) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[key]
	if !ok {
		return nil, nil
	}
	return a.Clone(), nil
}

func (s *MemStore) Commit(writes map[solana.PublicKey]*Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, a := range writes {
		if a.Lamports == 0 {
			delete(s.accounts, k)
			continue
		}
		s.accounts[k] = a.Clone()
	}
	return nil
}

func (s *MemStore) Close() error { return nil }
