package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDedupStore implements DedupStore using Redis. Suitable for deployments
// where multiple instances accept uploads and need to share dedup state.
type RedisDedupStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisDedupStore creates a dedup store on an existing Redis client.
func NewRedisDedupStore(client *redis.Client, keyPrefix string) *RedisDedupStore {
	if keyPrefix == "" {
		keyPrefix = "upload:dedup:"
	}
	return &RedisDedupStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

var _ DedupStore = (*RedisDedupStore)(nil)

// MarkProcessed marks a batch key as processed with a TTL.
// Uses SETNX so concurrent submissions of the same file race safely.
func (s *RedisDedupStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	set, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark batch as processed: %w", err)
	}
	return set, nil
}

// IsProcessed checks if a batch key has already been processed.
func (s *RedisDedupStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check batch dedup state: %w", err)
	}
	return exists > 0, nil
}
