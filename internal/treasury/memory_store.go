package treasury

import (
	"context"
	"math/big"
	"sync"
)

// MemoryStore is an in-memory platform balance store for demo/development mode.
type MemoryStore struct {
	balances map[string]*big.Int
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory platform balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]*big.Int),
	}
}

func (m *MemoryStore) Add(ctx context.Context, token string, delta *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.balances[token]
	if !ok {
		b = new(big.Int)
		m.balances[token] = b
	}
	b.Add(b, delta)
	return nil
}

func (m *MemoryStore) Balance(ctx context.Context, token string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if b, ok := m.balances[token]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
