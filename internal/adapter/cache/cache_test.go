package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

func sampleResult(query string) *domain.RouteResult {
	return &domain.RouteResult{
		Kind:  domain.RouteSingleAgent,
		Query: query,
		Responses: []domain.WorkerResponse{
			{Worker: "rhys", Domain: domain.DomainArchitecture, Text: "layered design", LatencyMS: 40},
		},
		Metadata: domain.Metadata{
			Performance: domain.Performance{ResponseTimeMS: 45},
		},
	}
}

func TestMemory_HitAndExpiry(t *testing.T) {
	m := NewMemory(time.Hour, 100)
	base := time.Now()
	m.now = func() time.Time { return base }

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "fp1", sampleResult("q1")))

	got, ok, err := m.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "q1", got.Query)

	// Past the TTL the entry lazily disappears.
	m.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	_, ok, err = m.Get(ctx, "fp1")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 0, m.Len())
}

func TestMemory_Miss(t *testing.T) {
	m := NewMemory(time.Hour, 100)
	_, ok, err := m.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemory_EvictsOldestFirst(t *testing.T) {
	m := NewMemory(time.Hour, 3)
	base := time.Now()
	tick := 0
	m.now = func() time.Time { tick++; return base.Add(time.Duration(tick) * time.Second) }

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, m.Set(ctx, fmt.Sprintf("fp%d", i), sampleResult(fmt.Sprintf("q%d", i))))
	}
	require.Equal(t, 3, m.Len())

	// fp0 is the oldest and must be the one evicted.
	_, ok, _ := m.Get(ctx, "fp0")
	require.False(t, ok)
	for i := 1; i < 4; i++ {
		_, ok, _ := m.Get(ctx, fmt.Sprintf("fp%d", i))
		require.True(t, ok)
	}
}

func TestMemory_EvictionPrefersExpired(t *testing.T) {
	m := NewMemory(time.Minute, 2)
	base := time.Now()
	now := base
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Set(ctx, "stale", sampleResult("old")))

	// Let the first entry expire, then fill past the cap.
	now = base.Add(2 * time.Minute)
	require.NoError(t, m.Set(ctx, "fresh1", sampleResult("f1")))
	require.NoError(t, m.Set(ctx, "fresh2", sampleResult("f2")))

	_, ok, _ := m.Get(ctx, "fresh1")
	require.True(t, ok)
	_, ok, _ = m.Get(ctx, "fresh2")
	require.True(t, ok)
	_, ok, _ = m.Get(ctx, "stale")
	require.False(t, ok)
}

func TestDisabled_AlwaysMisses(t *testing.T) {
	d := NewDisabled()
	ctx := context.Background()
	require.NoError(t, d.Set(ctx, "fp", sampleResult("q")))
	_, ok, err := d.Get(ctx, "fp")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedis_RoundTripAndTTL(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	r, err := NewRedis(ctx, srv.Addr(), time.Hour)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	require.NoError(t, r.Set(ctx, "fp1", sampleResult("q1")))

	got, ok, err := r.Get(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "q1", got.Query)
	require.Equal(t, domain.RouteSingleAgent, got.Kind)
	require.Len(t, got.Responses, 1)

	srv.FastForward(time.Hour + time.Second)
	_, ok, err = r.Get(ctx, "fp1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedis_CorruptValueIsAMiss(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	r, err := NewRedis(ctx, srv.Addr(), time.Hour)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	require.NoError(t, srv.Set(redisKeyPrefix+"bad", "{not json"))
	_, ok, err := r.Get(ctx, "bad")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedis_BadAddrFailsFast(t *testing.T) {
	_, err := NewRedis(context.Background(), "127.0.0.1:1", time.Hour)
	require.Error(t, err)
}
