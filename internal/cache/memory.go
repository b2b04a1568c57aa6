// Package cache provides the two-tier response cache: a bounded in-process
// LRU in front of a sqlite-backed disk store, composed by Layered.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no time-based eviction
}

// Memory is a bounded LRU with per-entry TTL. Entries with a non-positive
// TTL never expire by time but are still evicted by recency.
type Memory struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	items    map[string]*list.Element
	now      func() time.Time
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

// Get returns the cached value and promotes the entry to most recent.
// Expired entries are removed and reported as absent.
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, ok := m.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*memoryEntry)
	if m.expired(entry) {
		m.remove(el)
		return nil, false
	}
	m.order.MoveToFront(el)
	return entry.value, true
}

// Set stores value under key. ttl <= 0 makes the entry permanent with
// respect to time (LRU eviction still applies).
func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if el, ok := m.items[key]; ok {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		m.order.MoveToFront(el)
		return
	}

	el := m.order.PushFront(&memoryEntry{key: key, value: value, expiresAt: expiresAt})
	m.items[key] = el

	for m.order.Len() > m.capacity {
		m.remove(m.order.Back())
	}
}

func (m *Memory) Has(key string) bool {
	_, ok := m.Get(key)
	return ok
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.remove(el)
	}
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order.Init()
	m.items = make(map[string]*list.Element, m.capacity)
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Keys returns cached keys from most to least recently used.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*memoryEntry).key)
	}
	return keys
}

func (m *Memory) expired(e *memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}

func (m *Memory) remove(el *list.Element) {
	if el == nil {
		return
	}
	entry := m.order.Remove(el).(*memoryEntry)
	delete(m.items, entry.key)
}
