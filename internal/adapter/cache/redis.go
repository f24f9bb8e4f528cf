package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

const redisKeyPrefix = "ninefold:cache:"

// Redis is a shared result store backed by go-redis. Results are stored
// as JSON with the TTL applied per key, so expiry is handled server-side.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr and verifies the connection with a ping.
func NewRedis(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("op=cache.NewRedis: ping %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

// Get returns the cached result for a fingerprint. Decode failures are
// treated as misses so a schema change never poisons the cache.
func (r *Redis) Get(ctx context.Context, fingerprint string) (*domain.RouteResult, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+fingerprint).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("op=cache.Redis.Get: %w", err)
	}
	var res domain.RouteResult
	if err := json.Unmarshal(raw, &res); err != nil {
		_ = r.client.Del(ctx, redisKeyPrefix+fingerprint).Err()
		return nil, false, nil
	}
	return &res, true, nil
}

// Set stores a result under its fingerprint with the configured TTL.
func (r *Redis) Set(ctx context.Context, fingerprint string, res *domain.RouteResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("op=cache.Redis.Set: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+fingerprint, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.Redis.Set: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error { return r.client.Close() }
