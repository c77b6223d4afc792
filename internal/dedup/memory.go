package dedup

import (
	"sync"
	"time"
)

// MemoryStore is the corruption fallback. Same contract, process lifetime only.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]time.Time)}
}

func key(sourceID, canonicalID string) string {
	return sourceID + "|" + canonicalID
}

func (m *MemoryStore) Seen(sourceID, canonicalID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[key(sourceID, canonicalID)]
	return ok, nil
}

func (m *MemoryStore) Mark(sourceID, canonicalID string, observed time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(sourceID, canonicalID)
	if _, ok := m.items[k]; !ok {
		m.items[k] = observed.UTC()
	}
	return nil
}

func (m *MemoryStore) Purge(olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, ts := range m.items {
		if ts.Before(olderThan) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Len() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.items)), nil
}

func (m *MemoryStore) Close() error { return nil }
