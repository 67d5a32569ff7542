package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis is a Store backed by a Redis instance. Entries are stored as JSON
// under their own key; TTL enforcement is delegated to Redis.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis store around an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get fetches and decodes the entry; a missing key returns nil.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Set encodes and stores the entry with the given TTL.
func (r *Redis) Set(ctx context.Context, entry Entry, ttl time.Duration) error {
	if ttl > 0 {
		entry.ExpiresAt = time.Now().UTC().Add(ttl)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, entry.Key, raw, ttl).Err()
}

// Remove deletes an exact key.
func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// RemoveByPrefix scans for keys under the prefix and deletes them in batches.
func (r *Redis) RemoveByPrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return r.client.Del(ctx, batch...).Err()
	}
	return nil
}
