package tenants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const sessionKeyPrefix = "fieldline:tenant_selection:"

// SessionStore keeps each user's selected tenant in Redis. The selection
// outlives a single request but expires with the session TTL, after which
// resolution falls back to the default membership.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a session-backed tenant selection store
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionStore{client: client, ttl: ttl}
}

// SelectedTenant returns the user's selected tenant, or "" when none is set
func (s *SessionStore) SelectedTenant(ctx context.Context, userID string) (string, error) {
	tenantID, err := s.client.Get(ctx, sessionKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read tenant selection: %w", err)
	}
	return tenantID, nil
}

// Select stores the user's tenant selection
func (s *SessionStore) Select(ctx context.Context, userID, tenantID string) error {
	if err := s.client.Set(ctx, sessionKeyPrefix+userID, tenantID, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store tenant selection: %w", err)
	}
	return nil
}

// Clear removes the user's tenant selection
func (s *SessionStore) Clear(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to clear tenant selection: %w", err)
	}
	return nil
}
