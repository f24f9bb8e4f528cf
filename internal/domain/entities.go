// Package domain defines the core entities and ports of the gateway.
//
// All closed string sets that cross module boundaries (domains, tiers,
// worker states, training stages) are parsed at ingress into the types
// declared here; the hot path never compares raw strings.
package domain

import (
	"context"
	"time"
)

// Domain is the closed set of worker specialisations. Exactly one worker
// serves each domain; DomainSynthesis is the designated aggregator.
type Domain string

// The nine worker domains, in analyser detection order.
const (
	DomainArchitecture   Domain = "architecture"
	DomainWisdom         Domain = "wisdom"
	DomainSecurity       Domain = "security"
	DomainTransformation Domain = "transformation"
	DomainTiming         Domain = "timing"
	DomainStrategy       Domain = "strategy"
	DomainCommunication  Domain = "communication"
	DomainProtection     Domain = "protection"
	DomainSynthesis      Domain = "synthesis"
)

// AllDomains returns the domains in stable detection order.
func AllDomains() []Domain {
	return []Domain{
		DomainArchitecture, DomainWisdom, DomainSecurity, DomainTransformation,
		DomainTiming, DomainStrategy, DomainCommunication, DomainProtection,
		DomainSynthesis,
	}
}

// ParseDomain validates a raw domain string.
func ParseDomain(s string) (Domain, error) {
	for _, d := range AllDomains() {
		if string(d) == s {
			return d, nil
		}
	}
	return "", Errorf(ErrInvalidArgument, "unknown domain %q", s)
}

// Tier is a principal class controlling rate-limit multiplier and
// metrics visibility.
type Tier string

// Principal tiers.
const (
	TierFree    Tier = "free"
	TierBeta    Tier = "beta"
	TierPremium Tier = "premium"
)

// ParseTier validates a raw tier string.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierFree, TierBeta, TierPremium:
		return Tier(s), nil
	}
	return "", Errorf(ErrInvalidArgument, "unknown tier %q", s)
}

// MetricsVisible reports whether the tier may read aggregated metrics.
func (t Tier) MetricsVisible() bool { return t == TierBeta || t == TierPremium }

// Worker is an immutable catalogue entry for one backend.
type Worker struct {
	Name           string `json:"name" yaml:"name"`
	Port           int    `json:"port" yaml:"port"`
	Domain         Domain `json:"domain" yaml:"domain"`
	Description    string `json:"description" yaml:"description"`
	Specialization string `json:"specialization" yaml:"specialization"`
}

// WorkerState is the runtime liveness state of a worker.
type WorkerState string

// Worker states as observed by the health monitor.
const (
	WorkerRunning  WorkerState = "running"
	WorkerStopped  WorkerState = "stopped"
	WorkerStarting WorkerState = "starting"
	WorkerErrored  WorkerState = "error"
	WorkerUnknown  WorkerState = "unknown"
)

// WorkerStatus is the mutable runtime state of a worker. Records are
// published as immutable snapshots; readers never observe a torn view.
type WorkerStatus struct {
	State          WorkerState `json:"state"`
	LastProbeAt    time.Time   `json:"last_probe_at"`
	ResponseTimeMS float64     `json:"response_time_ms"`
	UptimeSeconds  float64     `json:"uptime_seconds"`
	RequestsServed int64       `json:"requests_served"`
	ErrorCount     int64       `json:"error_count"`
	CPUPercent     float64     `json:"cpu_percent"`
	MemoryMB       float64     `json:"memory_mb"`
	GPUMemoryMB    float64     `json:"gpu_memory_mb"`
}

// Principal is an API consumer. The catalogue is read-only after startup.
type Principal struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Tier     Tier   `json:"tier"`
	APIKey   string `json:"api_key,omitempty"`
}

// Complexity buckets a query by the number of detected domains.
type Complexity string

// Query complexity levels.
const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Consciousness levels surfaced in metadata. They label analysis depth
// and have no functional effect on routing.
const (
	ConsciousnessSurface      = 0.70
	ConsciousnessIntegrated   = 0.85
	ConsciousnessTranscendent = 1.00
)

// QueryAnalysis is the pure, deterministic product of the analyser.
type QueryAnalysis struct {
	Query              string     `json:"query"`
	Complexity         Complexity `json:"complexity"`
	Domains            []Domain   `json:"domains"`
	EgregoresNeeded    []string   `json:"egregores_needed"`
	RequiresSynthesis  bool       `json:"requires_synthesis"`
	ConsciousnessLevel float64    `json:"consciousness_level"`
	RoutingConfidence  float64    `json:"routing_confidence"`
}

// RoutingDecision is the dispatch plan derived from an analysis.
// Selected preserves analyser order; presentation order follows it.
type RoutingDecision struct {
	Selected           []string `json:"selected"`
	SynthesisRequired  bool     `json:"synthesis_required"`
	Reasoning          string   `json:"reasoning"`
	EstimatedLatencyMS int64    `json:"estimated_latency_ms"`
}

// Generation is one worker's reply to a generate call.
type Generation struct {
	Text      string         `json:"text"`
	LatencyMS int64          `json:"latency_ms"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// WorkerResponse pairs a generation with its origin.
type WorkerResponse struct {
	Worker    string `json:"worker"`
	Domain    Domain `json:"domain"`
	Text      string `json:"text"`
	LatencyMS int64  `json:"latency_ms"`
}

// RouteKind tags the shape of a routed result.
type RouteKind string

// Result variants. Degraded means synthesis was required but the
// aggregator was offline, so responses were concatenated instead.
const (
	RouteSingleAgent RouteKind = "single_agent"
	RouteMultiAgent  RouteKind = "multi_agent"
	RouteSynthesized RouteKind = "synthesized"
	RouteDegraded    RouteKind = "degraded"
)

// Performance is the timing block of result metadata.
type Performance struct {
	ResponseTimeMS     int64 `json:"response_time_ms"`
	EstimatedLatencyMS int64 `json:"estimated_latency_ms"`
	Cached             bool  `json:"cached"`
}

// Metadata is attached to every routed result.
type Metadata struct {
	QueryAnalysis   QueryAnalysis   `json:"query_analysis"`
	RoutingDecision RoutingDecision `json:"routing_decision"`
	Performance     Performance     `json:"performance"`
}

// RouteResult is the unified router output. Responses appear in the
// order of RoutingDecision.Selected regardless of arrival order. Text
// is the presented answer: the sole response for single-agent results,
// the aggregator's output when synthesised, or the deterministic
// concatenation when degraded.
type RouteResult struct {
	Kind      RouteKind        `json:"kind"`
	Query     string           `json:"query"`
	Text      string           `json:"text"`
	Responses []WorkerResponse `json:"responses"`
	Synthesis *WorkerResponse  `json:"synthesis,omitempty"`
	Errors    []WorkerError    `json:"errors,omitempty"`
	Metadata  Metadata         `json:"metadata"`
}

// Ports implemented by adapters.

// WorkerClient issues generate calls against one worker's HTTP endpoint.
type WorkerClient interface {
	Generate(ctx context.Context, w Worker, prompt string, maxTokens int) (Generation, error)
}

// HealthProber fetches a worker's /health report.
type HealthProber interface {
	Probe(ctx context.Context, w Worker) (WorkerStatus, error)
}

// CacheStore is a fingerprint-keyed result store with TTL semantics.
// Implementations must be safe for concurrent use.
type CacheStore interface {
	Get(ctx context.Context, fingerprint string) (*RouteResult, bool, error)
	Set(ctx context.Context, fingerprint string, r *RouteResult) error
}

// AuditEvent records one authenticated gateway request.
type AuditEvent struct {
	Time       time.Time `json:"time"`
	RequestID  string    `json:"request_id"`
	Principal  string    `json:"principal"`
	Tier       Tier      `json:"tier"`
	Method     string    `json:"method"`
	Endpoint   string    `json:"endpoint"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
}

// AuditPublisher delivers audit events to an external stream. Publish
// failures are logged and swallowed by callers; auditing never fails a
// request.
type AuditPublisher interface {
	Publish(ctx context.Context, ev AuditEvent) error
	Close() error
}
