package checkpoint

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests and ephemeral runs where
// checkpoints need not survive the process.
type Memory struct {
	mu       sync.Mutex
	lastSync map[string]time.Time
	items    map[string]map[string]ItemState // providerID -> itemID -> state
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory checkpoint store.
func NewMemory() *Memory {
	return &Memory{
		lastSync: make(map[string]time.Time),
		items:    make(map[string]map[string]ItemState),
	}
}

// LastSync implements Store.
func (m *Memory) LastSync(ctx context.Context, providerID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSync[providerID], nil
}

// SetLastSync implements Store.
func (m *Memory) SetLastSync(ctx context.Context, providerID string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync[providerID] = ts
	return nil
}

// PutItemStates implements Store.
func (m *Memory) PutItemStates(ctx context.Context, states []ItemState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, st := range states {
		byItem := m.items[st.ProviderID]
		if byItem == nil {
			byItem = make(map[string]ItemState)
			m.items[st.ProviderID] = byItem
		}
		byItem[st.ItemID] = st
	}
	return nil
}

// DeleteItemStates implements Store.
func (m *Memory) DeleteItemStates(ctx context.Context, providerID string, itemIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byItem := m.items[providerID]
	for _, id := range itemIDs {
		delete(byItem, id)
	}
	return nil
}

// ItemState implements Store.
func (m *Memory) ItemState(ctx context.Context, providerID, itemID string) (ItemState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.items[providerID][itemID]
	return st, ok, nil
}

// ProviderItemStates implements Store.
func (m *Memory) ProviderItemStates(ctx context.Context, providerID string) (map[string]ItemState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]ItemState, len(m.items[providerID]))
	for id, st := range m.items[providerID] {
		out[id] = st
	}
	return out, nil
}
