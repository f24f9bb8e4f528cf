package ratelimiter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

func tierMultiplier(t domain.Tier) int {
	switch t {
	case domain.TierBeta, domain.TierPremium:
		return 5
	default:
		return 1
	}
}

func newLimiter(base int64) (*Limiter, func(time.Duration)) {
	l := New(base, time.Minute, tierMultiplier)
	current := time.Now()
	l.now = func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return l, advance
}

func TestAllow_DrainsToZero(t *testing.T) {
	l, _ := newLimiter(3)

	for i := 0; i < 3; i++ {
		d := l.Allow("demo", domain.TierFree)
		require.True(t, d.Allowed, "request %d", i)
	}
	d := l.Allow("demo", domain.TierFree)
	require.False(t, d.Allowed)
	require.Equal(t, int64(0), d.Remaining)
	require.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestAllow_TierMultiplierScalesCapacity(t *testing.T) {
	l, _ := newLimiter(2)

	require.Equal(t, int64(2), l.Capacity(domain.TierFree))
	require.Equal(t, int64(10), l.Capacity(domain.TierBeta))
	require.Equal(t, int64(10), l.Capacity(domain.TierPremium))

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow("premium", domain.TierPremium).Allowed)
	}
	require.False(t, l.Allow("premium", domain.TierPremium).Allowed)
}

func TestAllow_RefillsOverTime(t *testing.T) {
	l, advance := newLimiter(60) // 1 token/s

	for i := 0; i < 60; i++ {
		require.True(t, l.Allow("demo", domain.TierFree).Allowed)
	}
	require.False(t, l.Allow("demo", domain.TierFree).Allowed)

	// 999ms refills 0.999 tokens: still short of a whole token.
	advance(999 * time.Millisecond)
	require.False(t, l.Allow("demo", domain.TierFree).Allowed)

	advance(1 * time.Millisecond)
	require.True(t, l.Allow("demo", domain.TierFree).Allowed)
}

func TestAllow_RefillClampsAtCapacity(t *testing.T) {
	l, advance := newLimiter(5)

	require.True(t, l.Allow("demo", domain.TierFree).Allowed)
	advance(time.Hour)

	// A long idle period never yields more than capacity.
	for i := 0; i < 5; i++ {
		require.True(t, l.Allow("demo", domain.TierFree).Allowed)
	}
	require.False(t, l.Allow("demo", domain.TierFree).Allowed)
}

func TestAllow_BucketsAreIndependent(t *testing.T) {
	l, _ := newLimiter(1)

	require.True(t, l.Allow("alice", domain.TierFree).Allowed)
	require.False(t, l.Allow("alice", domain.TierFree).Allowed)
	require.True(t, l.Allow("bob", domain.TierFree).Allowed)
}

func TestAllow_RetryAfterIsTheWindow(t *testing.T) {
	l, _ := newLimiter(60)

	for i := 0; i < 60; i++ {
		l.Allow("demo", domain.TierFree)
	}
	d := l.Allow("demo", domain.TierFree)
	require.False(t, d.Allowed)
	require.Equal(t, time.Minute, d.RetryAfter)
}

func TestAllow_ConcurrentAdmissionsNeverExceedCapacity(t *testing.T) {
	l := New(50, time.Hour, tierMultiplier) // negligible refill during the test

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("demo", domain.TierFree).Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 50, admitted)
}
