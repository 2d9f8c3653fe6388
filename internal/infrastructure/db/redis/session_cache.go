package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cassauth/cassauth/internal/core/domain"
)

// maxCacheTTL caps a cache entry's lifetime regardless of how far out the
// session expires, so a deleted-elsewhere row can't outlive the cap.
const maxCacheTTL = time.Hour

// SessionCache is a read-through cache for session rows.
// Key format: sess:<session_key>
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache creates a SessionCache wrapping the given Redis client.
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

// Get returns the cached session, or (nil, nil) on a miss.
func (c *SessionCache) Get(ctx context.Context, key string) (*domain.Session, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session cache get: %w", err)
	}

	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		// A corrupt entry is dropped, not served.
		_ = c.client.Del(ctx, c.key(key)).Err()
		return nil, fmt.Errorf("session cache decode: %w", err)
	}
	return &sess, nil
}

// Set stores the session with the given TTL, clamped to maxCacheTTL.
func (c *SessionCache) Set(ctx context.Context, sess *domain.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if ttl > maxCacheTTL {
		ttl = maxCacheTTL
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key(sess.Key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("session cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached entry.
func (c *SessionCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("session cache invalidate: %w", err)
	}
	return nil
}

func (c *SessionCache) key(sessionKey string) string {
	return "sess:" + sessionKey
}
