package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKey = "meterflow:series:current"

// RedisStore shares the current snapshot between service replicas.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore returns redis-backed store. A zero ttl keeps the snapshot until replaced or cleared.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = defaultKey
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// Load returns the cached snapshot.
func (s *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	result, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("store: get %s: %w", s.key, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(result, &snap); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return &snap, nil
}

// Replace overwrites the snapshot in a single SET.
func (s *RedisStore) Replace(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

// Clear removes the snapshot.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
