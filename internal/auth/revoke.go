package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Revoker remembers token ids that were logged out before they expired.
type Revoker interface {
	// Revoke marks jti as revoked until expiresAt.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// IsRevoked reports whether jti is still on the list.
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryRevoker keeps revoked ids in process memory. Entries are pruned
// lazily on Revoke.
type MemoryRevoker struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]time.Time
}

// NewMemoryRevoker returns an empty MemoryRevoker reading time from now.
func NewMemoryRevoker(now func() time.Time) *MemoryRevoker {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevoker{now: now, entries: make(map[string]time.Time)}
}

func (m *MemoryRevoker) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, id)
		}
	}
	m.entries[jti] = expiresAt
	return nil
}

func (m *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[jti]
	return ok && exp.After(m.now()), nil
}

// RedisRevoker stores revoked ids as keys with a TTL equal to the token's
// remaining lifetime, so every API instance sharing the Redis sees a
// logout.
type RedisRevoker struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisRevoker wraps an existing client.
func NewRedisRevoker(rdb *redis.Client, now func() time.Time) *RedisRevoker {
	if now == nil {
		now = time.Now
	}
	return &RedisRevoker{rdb: rdb, prefix: "gatepass:revoked:", now: now}
}

func (r *RedisRevoker) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.rdb.Set(ctx, r.prefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis revoke: %w", err)
	}
	return nil
}

func (r *RedisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("redis revoked lookup: %w", err)
	}
	return n > 0, nil
}
