package state

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store. Entries live for the duration of the
// process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Entry),
	}
}

func (m *MemoryStore) Get(key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.data[key]
	return entry, exists, nil
}

func (m *MemoryStore) Put(key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = entry
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Keys returns the keys in lexical order.
func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// Size returns the number of entries. Useful for tests and diagnostics.
func (m *MemoryStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
