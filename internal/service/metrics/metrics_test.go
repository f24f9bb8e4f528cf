package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

func TestRequest_Counters(t *testing.T) {
	a := New()
	a.Request("demo", domain.TierFree, "/v1/query", true, 100)
	a.Request("demo", domain.TierFree, "/v1/query", true, 200)
	a.Request("beta_tester", domain.TierBeta, "/v1/analyze", false, 30)

	s := a.Snapshot()
	require.Equal(t, int64(3), s.Total)
	require.Equal(t, int64(2), s.Successful)
	require.Equal(t, int64(1), s.Failed)
	require.InDelta(t, 110.0, s.AvgResponseMS, 1e-9)
	require.Equal(t, int64(2), s.ByUser["demo"])
	require.Equal(t, int64(1), s.ByUser["beta_tester"])
	require.Equal(t, int64(2), s.ByEndpoint["/v1/query"])
	require.Equal(t, int64(2), s.ByTier[domain.TierFree])
	require.Equal(t, int64(1), s.ByTier[domain.TierBeta])
}

func TestRoute_KindBuckets(t *testing.T) {
	a := New()
	a.Route(domain.RouteSingleAgent, false)
	a.Route(domain.RouteSingleAgent, true)
	a.Route(domain.RouteMultiAgent, false)
	a.Route(domain.RouteSynthesized, false)
	a.Route(domain.RouteDegraded, false)

	s := a.Snapshot()
	require.Equal(t, int64(2), s.SingleAgent)
	require.Equal(t, int64(3), s.MultiAgent)
	require.Equal(t, int64(1), s.SynthesisUsed)
	require.Equal(t, int64(1), s.CacheHits)
}

func TestStats_DerivedRates(t *testing.T) {
	a := New()
	for i := 0; i < 4; i++ {
		a.Request("demo", domain.TierFree, "/v1/query", i != 3, 100)
	}
	a.Route(domain.RouteSingleAgent, true)
	a.Route(domain.RouteSingleAgent, false)
	a.Route(domain.RouteSynthesized, false)
	a.Route(domain.RouteMultiAgent, false)

	st := a.Stats()
	require.Equal(t, int64(4), st.TotalRequests)
	require.InDelta(t, 0.75, st.SuccessRate, 1e-9)
	require.InDelta(t, 0.25, st.CacheHitRate, 1e-9)
	require.InDelta(t, 0.5, st.MultiAgentRate, 1e-9)
	require.InDelta(t, 0.25, st.SynthesisRate, 1e-9)
}

func TestStats_ZeroRequestsNoNaN(t *testing.T) {
	st := New().Stats()
	require.Zero(t, st.SuccessRate)
	require.Zero(t, st.CacheHitRate)
	require.Zero(t, st.MultiAgentRate)
	require.Zero(t, st.SynthesisRate)
	require.Zero(t, st.AvgResponseMS)
}

func TestConcurrentRecording(t *testing.T) {
	a := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Request("demo", domain.TierFree, "/v1/query", true, 10)
			a.Route(domain.RouteSingleAgent, false)
		}()
	}
	wg.Wait()

	s := a.Snapshot()
	require.Equal(t, int64(100), s.Total)
	require.Equal(t, int64(100), s.SingleAgent)
	require.Equal(t, int64(100), s.ByUser["demo"])
}
