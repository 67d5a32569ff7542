// Package cache defines the durable key-value cache contract and its
// in-memory and Redis implementations.
package cache

import (
	"context"
	"fmt"
	"time"

	"example.com/healthtrack/internal/domain"
)

// Entry is a cached value tied to the version of the aggregate it was
// derived from. An entry is valid only while SourceVersion still matches the
// backing aggregate's version.
type Entry struct {
	Key           string    `json:"key"`
	Value         []byte    `json:"value"`
	ExpiresAt     time.Time `json:"expires_at"`
	SourceVersion int64     `json:"source_version"`
}

// Expired reports whether the entry's TTL has lapsed at now.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Store is the persistent cache contract. Get returns nil for a missing or
// expired key; absence is not an error.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, entry Entry, ttl time.Duration) error
	Remove(ctx context.Context, key string) error
	RemoveByPrefix(ctx context.Context, prefix string) error
}

// TodayKey builds the cache key for a user's current-day aggregate in one
// domain. Invalidation by domain scope uses TodayPrefix.
func TodayKey(d domain.Domain, userID string) string {
	return fmt.Sprintf("today:%s:%s", d, userID)
}

// TodayPrefix is the key prefix covering one domain's current-day entries.
func TodayPrefix(d domain.Domain) string {
	return fmt.Sprintf("today:%s:", d)
}

// Noop is a Store that caches nothing.
type Noop struct{}

func (Noop) Get(context.Context, string) (*Entry, error) { return nil, nil }
func (Noop) Set(context.Context, Entry, time.Duration) error { return nil }
func (Noop) Remove(context.Context, string) error { return nil }
func (Noop) RemoveByPrefix(context.Context, string) error { return nil }
