package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roster/backend/internal/application/upload"
)

// ErrReportNotFound is returned when no report exists for a batch ID.
var ErrReportNotFound = errors.New("batch report not found")

// ReportStore retains finished batch reports so they can be fetched after the
// upload request completes.
type ReportStore interface {
	// Save stores the report under the batch ID for ttl.
	Save(ctx context.Context, batchID string, report *upload.Report, ttl time.Duration) error

	// Get fetches a stored report. Returns ErrReportNotFound when the batch
	// is unknown or its report has expired.
	Get(ctx context.Context, batchID string) (*upload.Report, error)
}

// RedisReportStore implements ReportStore with JSON documents in Redis.
type RedisReportStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisReportStore creates a report store on an existing Redis client.
func NewRedisReportStore(client *redis.Client) *RedisReportStore {
	return &RedisReportStore{
		client:    client,
		keyPrefix: "upload:report:",
	}
}

var _ ReportStore = (*RedisReportStore)(nil)

// Save stores the report under the batch ID for ttl.
func (s *RedisReportStore) Save(ctx context.Context, batchID string, report *upload.Report, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode batch report: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+batchID, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store batch report: %w", err)
	}
	return nil
}

// Get fetches a stored report.
func (s *RedisReportStore) Get(ctx context.Context, batchID string) (*upload.Report, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+batchID).Bytes()
	if err == redis.Nil {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch batch report: %w", err)
	}

	var report upload.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode batch report: %w", err)
	}
	return &report, nil
}

type reportEntry struct {
	report    *upload.Report
	expiresAt time.Time
}

// InMemoryReportStore implements ReportStore with an in-memory map. Suitable
// for single-instance deployments and testing.
type InMemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]reportEntry
}

// NewInMemoryReportStore creates an empty in-memory report store.
func NewInMemoryReportStore() *InMemoryReportStore {
	return &InMemoryReportStore{
		reports: make(map[string]reportEntry),
	}
}

var _ ReportStore = (*InMemoryReportStore)(nil)

func (s *InMemoryReportStore) Save(_ context.Context, batchID string, report *upload.Report, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[batchID] = reportEntry{
		report:    report,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (s *InMemoryReportStore) Get(_ context.Context, batchID string) (*upload.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.reports[batchID]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, ErrReportNotFound
	}
	return e.report, nil
}
