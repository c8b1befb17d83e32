// Package cache holds the Redis-backed stores used around batch processing:
// duplicate-submission detection and finished report retention.
package cache

import (
	"context"
	"time"
)

// DedupStore detects duplicate batch submissions. A batch is keyed by the
// content hash of the uploaded file scoped to the submitting tenant, so the
// same file resubmitted within the retention window is not processed twice.
type DedupStore interface {
	// MarkProcessed marks a batch key as processed with a TTL. Returns true
	// if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a batch key has already been processed.
	IsProcessed(ctx context.Context, key string) (bool, error)
}
