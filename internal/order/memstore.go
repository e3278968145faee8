package order

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests and local development.
type MemStore struct {
	mu     sync.RWMutex
	orders map[string]Order
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{orders: make(map[string]Order)}
}

func (m *MemStore) Create(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = o
	return nil
}

func (m *MemStore) Get(_ context.Context, id string) (Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemStore) List(_ context.Context, limit, offset int) ([]Order, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]Order, 0, len(m.orders))
	for _, o := range m.orders {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}
