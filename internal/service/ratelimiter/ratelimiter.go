// Package ratelimiter implements per-principal token buckets.
//
// Bucket capacity is the base allowance scaled by the principal's tier
// multiplier; tokens refill continuously at capacity/window. State is
// in-process: each gateway instance enforces its own allowance.
package ratelimiter

import (
	"math"
	"sync"
	"time"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// BucketConfig sizes one bucket.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

type bucket struct {
	mu         sync.Mutex
	cfg        BucketConfig
	tokens     float64
	lastRefill time.Time
}

// Limiter admits requests per principal. Safe for concurrent use; each
// bucket carries its own lock so principals never contend with each
// other.
type Limiter struct {
	base       int64
	window     time.Duration
	multiplier func(domain.Tier) int

	mu      sync.Mutex
	buckets map[string]*bucket

	// test seam
	now func() time.Time
}

// New builds a limiter granting base tokens per window for the free
// tier. multiplier scales capacity per tier and must return >= 1.
func New(base int64, window time.Duration, multiplier func(domain.Tier) int) *Limiter {
	return &Limiter{
		base:       base,
		window:     window,
		multiplier: multiplier,
		buckets:    make(map[string]*bucket),
		now:        time.Now,
	}
}

// Allow withdraws one token from the principal's bucket. A bucket with
// at least 1.0 tokens admits; anything less rejects. RetryAfter on a
// rejection is the full window: clients that drained their allowance
// back off for one window rather than hammering at the refill rate.
func (l *Limiter) Allow(username string, tier domain.Tier) Decision {
	b := l.bucketFor(username, tier)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(float64(b.cfg.Capacity), b.tokens+elapsed*b.cfg.RefillRate)
		b.lastRefill = now
	}

	if b.tokens >= 1.0 {
		b.tokens--
		return Decision{Allowed: true, Remaining: int64(b.tokens)}
	}

	return Decision{Allowed: false, Remaining: 0, RetryAfter: l.window}
}

// Capacity reports the bucket size for a tier.
func (l *Limiter) Capacity(tier domain.Tier) int64 {
	return l.base * int64(l.multiplier(tier))
}

func (l *Limiter) bucketFor(username string, tier domain.Tier) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[username]; ok {
		return b
	}
	capacity := l.Capacity(tier)
	b := &bucket{
		cfg: BucketConfig{
			Capacity:   capacity,
			RefillRate: float64(capacity) / l.window.Seconds(),
		},
		tokens:     float64(capacity),
		lastRefill: l.now(),
	}
	l.buckets[username] = b
	return b
}
