package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore tracks revoked tokens and users. A batch that suspends a user
// or changes their password revokes the user; the auth middleware then rejects
// any token issued before the revocation mark.
type SessionStore interface {
	// RevokeToken marks a single token (by its JTI) as revoked for ttl.
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error

	// IsTokenRevoked reports whether the token's JTI has been revoked.
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)

	// RevokeUser stamps a revocation time for the user. Tokens issued at or
	// before the stamp are rejected until ttl passes.
	RevokeUser(ctx context.Context, userID string, ttl time.Duration) error

	// IsIssuedBeforeRevocation reports whether a token issued at the given
	// time predates the user's revocation stamp.
	IsIssuedBeforeRevocation(ctx context.Context, userID string, issuedAt time.Time) (bool, error)
}

// RedisSessionStore implements SessionStore on Redis.
type RedisSessionStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSessionStore creates a session store on an existing Redis client.
func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{
		client:    client,
		keyPrefix: "session:revoked:",
	}
}

var _ SessionStore = (*RedisSessionStore)(nil)

func (s *RedisSessionStore) jtiKey(jti string) string {
	return s.keyPrefix + "jti:" + jti
}

func (s *RedisSessionStore) userKey(userID string) string {
	return s.keyPrefix + "user:" + userID
}

// RevokeToken marks a token's JTI as revoked for ttl.
func (s *RedisSessionStore) RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.jtiKey(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsTokenRevoked checks whether a token's JTI has been revoked.
func (s *RedisSessionStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	exists, err := s.client.Exists(ctx, s.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return exists > 0, nil
}

// RevokeUser stamps the current time as the user's revocation mark.
func (s *RedisSessionStore) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	mark := time.Now().Unix()
	if err := s.client.Set(ctx, s.userKey(userID), mark, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke user sessions: %w", err)
	}
	return nil
}

// IsIssuedBeforeRevocation checks the token's issue time against the user's
// revocation mark.
func (s *RedisSessionStore) IsIssuedBeforeRevocation(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	markStr, err := s.client.Get(ctx, s.userKey(userID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}

	var mark int64
	if _, err := fmt.Sscanf(markStr, "%d", &mark); err != nil {
		return false, fmt.Errorf("failed to parse revocation mark: %w", err)
	}

	return issuedAt.Unix() <= mark, nil
}

// InMemorySessionStore is a process-local SessionStore for tests and
// single-instance deployments.
type InMemorySessionStore struct {
	mu           sync.RWMutex
	revokedJTIs  map[string]time.Time // JTI -> expiry of the revocation entry
	revokedUsers map[string]time.Time // userID -> revocation mark
}

// NewInMemorySessionStore creates an empty in-memory session store.
func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		revokedJTIs:  make(map[string]time.Time),
		revokedUsers: make(map[string]time.Time),
	}
}

var _ SessionStore = (*InMemorySessionStore)(nil)

func (s *InMemorySessionStore) RevokeToken(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedJTIs[jti] = time.Now().Add(ttl)
	return nil
}

func (s *InMemorySessionStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.revokedJTIs[jti]
	if !ok {
		return false, nil
	}
	if time.Now().After(expiry) {
		delete(s.revokedJTIs, jti)
		return false, nil
	}
	return true, nil
}

func (s *InMemorySessionStore) RevokeUser(_ context.Context, userID string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedUsers[userID] = time.Now()
	return nil
}

func (s *InMemorySessionStore) IsIssuedBeforeRevocation(_ context.Context, userID string, issuedAt time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mark, ok := s.revokedUsers[userID]
	if !ok {
		return false, nil
	}
	// Nanosecond precision so a revocation in the same second still bites.
	return issuedAt.UnixNano() <= mark.UnixNano(), nil
}

// SessionRevoker bridges the session store to the batch engine: revoking all
// of a user's sessions stamps the user for the lifetime of the longest-lived
// token that could still be in flight.
type SessionRevoker struct {
	store SessionStore
	ttl   time.Duration
}

// NewSessionRevoker creates a revoker. ttl should be at least the refresh
// token lifetime.
func NewSessionRevoker(store SessionStore, ttl time.Duration) *SessionRevoker {
	return &SessionRevoker{store: store, ttl: ttl}
}

// RevokeAll invalidates every live session of the user.
func (r *SessionRevoker) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	return r.store.RevokeUser(ctx, userID.String(), r.ttl)
}
