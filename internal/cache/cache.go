// Package cache is the distributed concurrency-control plane: TTL'd
// dedup flags that suppress duplicate submissions and TTL'd mutual
// exclusion locks that short-circuit contention before it reaches the
// database. The cache is never authoritative; the persistence plane's
// row locks and version column decide winners. Correctness therefore
// survives total cache loss, at the cost of throughput.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Key namespaces. Full key layout: <namespace>:<feature>:<resource>.
const (
	nsDedup = "dedup"
	nsLocks = "locks"
)

// Store is the cache plane contract consumed by the services.
type Store interface {
	// SetDedup sets the dedup flag if absent, returning true when this
	// caller inserted it. A false return means the action is already
	// in progress elsewhere.
	SetDedup(ctx context.Context, feature, resource string, ttl time.Duration) (bool, error)
	// HasDedup reports whether the dedup flag is currently set.
	HasDedup(ctx context.Context, feature, resource string) (bool, error)
	// ClearDedup removes the flag. Errors are swallowed; the TTL is
	// the backstop.
	ClearDedup(ctx context.Context, feature, resource string)
	// AcquireLock acquires the named lock if free, returning true on
	// success. Cache failures count as "not acquired" (fail-closed).
	AcquireLock(ctx context.Context, feature, resource string, ttl time.Duration) (bool, error)
	// ReleaseLock releases the named lock. Idempotent; errors are
	// swallowed and the TTL is the backstop.
	ReleaseLock(ctx context.Context, feature, resource string)
}

// RedisStore implements Store on a Redis client using SET NX with
// expiry for both containers.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore around an already configured client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(namespace, feature, resource string) string {
	return fmt.Sprintf("%s:%s:%s", namespace, feature, resource)
}

// SetDedup sets the dedup flag via SET NX. On a cache failure it
// returns false with the error: fail-closed, the caller treats the
// action as already in flight.
func (s *RedisStore) SetDedup(ctx context.Context, feature, resource string, ttl time.Duration) (bool, error) {
	k := key(nsDedup, feature, resource)
	ok, err := s.client.SetNX(ctx, k, "1", ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", k).Msg("cache dedup set failed")
		return false, fmt.Errorf("set dedup %s: %w", k, err)
	}
	return ok, nil
}

// HasDedup reports whether the flag exists. Failures read as "set"
// so callers stay fail-closed.
func (s *RedisStore) HasDedup(ctx context.Context, feature, resource string) (bool, error) {
	k := key(nsDedup, feature, resource)
	n, err := s.client.Exists(ctx, k).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", k).Msg("cache dedup check failed")
		return true, fmt.Errorf("check dedup %s: %w", k, err)
	}
	return n > 0, nil
}

// ClearDedup deletes the flag, logging and swallowing failures.
func (s *RedisStore) ClearDedup(ctx context.Context, feature, resource string) {
	k := key(nsDedup, feature, resource)
	if err := s.client.Del(ctx, k).Err(); err != nil {
		log.Warn().Err(err).Str("key", k).Msg("cache dedup clear failed, TTL will expire it")
	}
}

// AcquireLock acquires via SET NX. Cache failures return false:
// the lock is treated as contended rather than granted.
func (s *RedisStore) AcquireLock(ctx context.Context, feature, resource string, ttl time.Duration) (bool, error) {
	k := key(nsLocks, feature, resource)
	ok, err := s.client.SetNX(ctx, k, "1", ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", k).Msg("cache lock acquire failed")
		return false, fmt.Errorf("acquire lock %s: %w", k, err)
	}
	return ok, nil
}

// ReleaseLock deletes the lock key, logging and swallowing failures.
func (s *RedisStore) ReleaseLock(ctx context.Context, feature, resource string) {
	k := key(nsLocks, feature, resource)
	if err := s.client.Del(ctx, k).Err(); err != nil {
		log.Warn().Err(err).Str("key", k).Msg("cache lock release failed, TTL will expire it")
	}
}

// Ping verifies cache reachability for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
