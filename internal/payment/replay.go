package payment

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ReplayGuard claims a webhook delivery key so duplicates can be skipped.
type ReplayGuard interface {
	// Acquire returns true when the key was free and is now held for ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees a key so the provider's retry is processed again.
	Release(ctx context.Context, key string) error
}

// RedisReplayGuard implements ReplayGuard using Redis SETNX semantics.
type RedisReplayGuard struct {
	Client redis.UniversalClient
}

// Acquire attempts to claim the delivery key for the provided TTL.
func (r RedisReplayGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.Client == nil {
		return true, nil
	}
	return r.Client.SetNX(ctx, key, "1", ttl).Result()
}

// Release removes the replay guard key.
func (r RedisReplayGuard) Release(ctx context.Context, key string) error {
	if r.Client == nil {
		return nil
	}
	return r.Client.Del(ctx, key).Err()
}

// MemoryReplayGuard keeps claimed keys in process memory.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]time.Time
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewMemoryReplayGuard returns an empty in-process guard.
func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: make(map[string]time.Time)}
}

// Acquire claims key unless an unexpired claim exists. Expired entries are swept on each call.
func (g *MemoryReplayGuard) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()
	if g.Now != nil {
		now = g.Now()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = make(map[string]time.Time)
	}
	for k, exp := range g.seen {
		if !now.Before(exp) {
			delete(g.seen, k)
		}
	}
	if _, held := g.seen[key]; held {
		return false, nil
	}
	g.seen[key] = now.Add(ttl)
	return true, nil
}

// Release drops the claim on key.
func (g *MemoryReplayGuard) Release(_ context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, key)
	return nil
}
