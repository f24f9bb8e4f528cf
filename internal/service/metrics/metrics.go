// Package metrics aggregates request-level counters for the /v1/metrics
// and /v1/stats views. This is the gateway's own bookkeeping; Prometheus
// exposition lives in the observability adapter.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Aggregator counts requests. Hot counters are atomics; the breakdown
// maps share one mutex since they are touched once per request.
type Aggregator struct {
	total         atomic.Int64
	successful    atomic.Int64
	failed        atomic.Int64
	cacheHits     atomic.Int64
	singleAgent   atomic.Int64
	multiAgent    atomic.Int64
	synthesisUsed atomic.Int64

	totalLatencyMS atomic.Int64

	mu         sync.Mutex
	byUser     map[string]int64
	byEndpoint map[string]int64
	byTier     map[domain.Tier]int64
}

// New builds an empty aggregator.
func New() *Aggregator {
	return &Aggregator{
		byUser:     make(map[string]int64),
		byEndpoint: make(map[string]int64),
		byTier:     make(map[domain.Tier]int64),
	}
}

// Request records one authenticated request regardless of outcome.
func (a *Aggregator) Request(username string, tier domain.Tier, endpoint string, ok bool, durationMS int64) {
	a.total.Add(1)
	if ok {
		a.successful.Add(1)
	} else {
		a.failed.Add(1)
	}
	a.totalLatencyMS.Add(durationMS)

	a.mu.Lock()
	a.byUser[username]++
	a.byEndpoint[endpoint]++
	a.byTier[tier]++
	a.mu.Unlock()
}

// Route records the shape of one routed query result.
func (a *Aggregator) Route(kind domain.RouteKind, cached bool) {
	if cached {
		a.cacheHits.Add(1)
	}
	switch kind {
	case domain.RouteSingleAgent:
		a.singleAgent.Add(1)
	case domain.RouteMultiAgent:
		a.multiAgent.Add(1)
	case domain.RouteSynthesized, domain.RouteDegraded:
		a.multiAgent.Add(1)
		if kind == domain.RouteSynthesized {
			a.synthesisUsed.Add(1)
		}
	}
}

// Snapshot is a consistent copy of every counter.
type Snapshot struct {
	Total         int64                 `json:"total_requests"`
	Successful    int64                 `json:"successful_requests"`
	Failed        int64                 `json:"failed_requests"`
	CacheHits     int64                 `json:"cache_hits"`
	SingleAgent   int64                 `json:"single_agent_requests"`
	MultiAgent    int64                 `json:"multi_agent_requests"`
	SynthesisUsed int64                 `json:"synthesis_used"`
	AvgResponseMS float64               `json:"avg_response_time_ms"`
	ByUser        map[string]int64      `json:"requests_by_user"`
	ByEndpoint    map[string]int64      `json:"requests_by_endpoint"`
	ByTier        map[domain.Tier]int64 `json:"requests_by_tier"`
}

// Stats is the derived-rate view served by /v1/stats.
type Stats struct {
	TotalRequests  int64   `json:"total_requests"`
	SuccessRate    float64 `json:"success_rate"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	MultiAgentRate float64 `json:"multi_agent_rate"`
	SynthesisRate  float64 `json:"synthesis_rate"`
	AvgResponseMS  float64 `json:"avg_response_time_ms"`
}

// Snapshot returns a copy of the current counters.
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		Total:         a.total.Load(),
		Successful:    a.successful.Load(),
		Failed:        a.failed.Load(),
		CacheHits:     a.cacheHits.Load(),
		SingleAgent:   a.singleAgent.Load(),
		MultiAgent:    a.multiAgent.Load(),
		SynthesisUsed: a.synthesisUsed.Load(),
		ByUser:        make(map[string]int64),
		ByEndpoint:    make(map[string]int64),
		ByTier:        make(map[domain.Tier]int64),
	}
	if s.Total > 0 {
		s.AvgResponseMS = float64(a.totalLatencyMS.Load()) / float64(s.Total)
	}

	a.mu.Lock()
	for k, v := range a.byUser {
		s.ByUser[k] = v
	}
	for k, v := range a.byEndpoint {
		s.ByEndpoint[k] = v
	}
	for k, v := range a.byTier {
		s.ByTier[k] = v
	}
	a.mu.Unlock()
	return s
}

// Stats derives rates from the current counters. Rates over zero
// requests are zero, never NaN.
func (a *Aggregator) Stats() Stats {
	s := a.Snapshot()
	out := Stats{TotalRequests: s.Total, AvgResponseMS: s.AvgResponseMS}
	if s.Total == 0 {
		return out
	}
	routed := s.SingleAgent + s.MultiAgent
	out.SuccessRate = float64(s.Successful) / float64(s.Total)
	if routed > 0 {
		out.CacheHitRate = float64(s.CacheHits) / float64(routed)
		out.MultiAgentRate = float64(s.MultiAgent) / float64(routed)
		out.SynthesisRate = float64(s.SynthesisUsed) / float64(routed)
	}
	return out
}
