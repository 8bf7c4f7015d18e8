package agents

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory agent store for demo/development mode.
type MemoryStore struct {
	agents map[string]*Agent
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory agent store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents: make(map[string]*Agent),
	}
}

func (m *MemoryStore) Create(ctx context.Context, agent *Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[agent.Address]; ok {
		return ErrAgentExists
	}
	cp := *agent
	m.agents[agent.Address] = &cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, address string) (*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[address]
	if !ok {
		return nil, ErrAgentNotFound
	}
	cp := *agent
	return &cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[address]; !ok {
		return ErrAgentNotFound
	}
	delete(m.agents, address)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]*Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Agent
	for _, a := range m.agents {
		cp := *a
		result = append(result, &cp)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

// Compile-time assertion that MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
