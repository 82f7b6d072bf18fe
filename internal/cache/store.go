// Package cache keeps fetched datasets with the time they were fetched so
// refresh policies can decide whether to serve or re-fetch them.
package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"stringline-viewer/internal/clock"
)

// Entry is one cached query result as JSON.
type Entry struct {
	Data      []byte    `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store persists entries. A ttl of 0 keeps the entry until evicted.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// DefaultMaxEntries bounds a MemoryStore when no size is given.
const DefaultMaxEntries = 4096

type memItem struct {
	entry   Entry
	expires time.Time // zero means never
}

// MemoryStore is a process-local Store. Entries without a ttl stay until the
// store is full; then the least recently used entry is evicted.
type MemoryStore struct {
	// mu makes expire-on-read atomic with Set
	mu    sync.Mutex
	items *lru.Cache[string, memItem]
	clock clock.Clock
}

// NewMemoryStore holds at most maxEntries entries; maxEntries <= 0 means
// DefaultMaxEntries.
func NewMemoryStore(clk clock.Clock, maxEntries int) *MemoryStore {
	if clk == nil {
		clk = clock.Real()
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	// lru.New only fails for a non-positive size
	items, _ := lru.New[string, memItem](maxEntries)
	return &MemoryStore{items: items, clock: clk}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items.Get(key)
	if !ok {
		return Entry{}, false, nil
	}
	if !it.expires.IsZero() && !m.clock.Now().Before(it.expires) {
		m.items.Remove(key)
		return Entry{}, false, nil
	}
	return it.entry, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, e Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := memItem{entry: e}
	if ttl > 0 {
		it.expires = m.clock.Now().Add(ttl)
	}
	m.items.Add(key, it)
	return nil
}

// Len reports the number of live and expired-but-unread entries.
func (m *MemoryStore) Len() int { return m.items.Len() }
