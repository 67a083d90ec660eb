package cache

import (
	"container/list"
	"context"
	"slices"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is a process-local Backend with time-based expiry. When
// maxEntries is positive, inserting beyond it evicts the oldest entry.
type MemoryBackend struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // front = oldest insertion
	now        func() time.Time
}

// NewMemoryBackend creates an in-memory backend. maxEntries <= 0 means unbounded.
func NewMemoryBackend(maxEntries int) *MemoryBackend {
	return &MemoryBackend{
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the stored value if present and unexpired.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}

	entry := el.Value.(*memoryEntry)
	if !m.now().Before(entry.expiresAt) {
		m.removeLocked(el)
		return nil, false, nil
	}

	return slices.Clone(entry.value), true, nil
}

// Set stores value under key. Overwriting counts as a fresh insertion.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if el, ok := m.entries[key]; ok {
		m.removeLocked(el)
	}

	m.entries[key] = m.order.PushBack(&memoryEntry{
		key:       key,
		value:     slices.Clone(value),
		expiresAt: m.now().Add(ttl),
	})

	for m.maxEntries > 0 && m.order.Len() > m.maxEntries {
		m.removeLocked(m.order.Front())
	}

	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

func (m *MemoryBackend) removeLocked(el *list.Element) {
	m.order.Remove(el)
	delete(m.entries, el.Value.(*memoryEntry).key)
}
