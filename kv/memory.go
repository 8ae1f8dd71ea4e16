package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process Store backed by a map. It honors TTLs lazily on
// read, which makes it a faithful stand-in for the Redis implementation in
// tests driven by a manual clock.
type Memory struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

// NewMemory creates an empty store on the system clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

// NewMemoryWithClock creates an empty store whose TTL checks use now. Tests
// inject a manual clock here.
func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{items: map[string]memoryEntry{}, now: now}
}

func (m *Memory) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok || m.expired(e) {
		delete(m.items, key)
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(key, value, ttl)
	return nil
}

func (m *Memory) set(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)
	e := memoryEntry{value: stored}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.items[key] = e
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// List implements Store.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k, e := range m.items {
		if m.expired(e) {
			delete(m.items, k)
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type memoryTx struct {
	store  *Memory
	writes []func()
}

func (t *memoryTx) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := t.store.items[key]
	if !ok || t.store.expired(e) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (t *memoryTx) Set(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)
	t.writes = append(t.writes, func() { t.store.set(key, stored, ttl) })
}

func (t *memoryTx) Delete(key string) {
	t.writes = append(t.writes, func() { delete(t.store.items, key) })
}

// Atomic implements Store. The store lock is held for the whole callback, so
// transactions are serialized and a real conflict cannot occur here; tests
// exercise the ErrConflict path through a wrapping fake store.
func (m *Memory) Atomic(_ context.Context, _ []string, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}
	for _, apply := range tx.writes {
		apply()
	}
	return nil
}
