package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store for local development and tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]Entry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the entry, or nil when absent or expired. Expired entries are
// removed lazily.
func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if entry.Expired(m.now()) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, nil
	}
	copied := entry
	copied.Value = append([]byte(nil), entry.Value...)
	return &copied, nil
}

// Set stores the entry, deriving ExpiresAt from ttl when positive.
func (m *Memory) Set(_ context.Context, entry Entry, ttl time.Duration) error {
	if ttl > 0 {
		entry.ExpiresAt = m.now().Add(ttl)
	}
	entry.Value = append([]byte(nil), entry.Value...)
	m.mu.Lock()
	m.entries[entry.Key] = entry
	m.mu.Unlock()
	return nil
}

// Remove deletes an exact key.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// RemoveByPrefix deletes every key sharing the prefix.
func (m *Memory) RemoveByPrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	m.mu.Unlock()
	return nil
}
