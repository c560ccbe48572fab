package otp

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemorySize caps the number of outstanding codes held in memory.
const DefaultMemorySize = 10000

// MemoryStore keeps codes in a size-bounded LRU with TTL eviction. Codes
// are lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, Entry]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding at most size codes for up to ttl.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultMemorySize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{cache: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

// Put stores e. The per-entry ttl is enforced through Entry.ExpiresAt; the
// cache TTL bounds how long any entry is kept.
func (m *MemoryStore) Put(ctx context.Context, id string, e Entry, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Add(id, e)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (Entry, error) {
	e, ok := m.cache.Get(id)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) Attempt(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache.Get(id)
	if !ok {
		return 0, ErrNotFound
	}
	e.Attempts++
	m.cache.Add(id, e)
	return e.Attempts, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(id)
	return nil
}

// Len returns the number of codes held.
func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
