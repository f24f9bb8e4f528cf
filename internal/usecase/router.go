// Package usecase holds the router core: the orchestration of cache
// probe, analysis, fan-out, and synthesis for one query.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/s2intelligence/ninefold-gateway/internal/adapter/observability"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
	"github.com/s2intelligence/ninefold-gateway/internal/service/analyzer"
	"github.com/s2intelligence/ninefold-gateway/internal/service/metrics"
	"github.com/s2intelligence/ninefold-gateway/pkg/queryx"
)

// Directory is the registry surface the router needs: catalogue lookup
// plus liveness.
type Directory interface {
	Lookup(name string) (domain.Worker, bool)
	IsAvailable(name string) bool
	Available() []string
}

// Options tunes the router.
type Options struct {
	InferenceTimeout time.Duration
	SynthesisTimeout time.Duration
	MaxTokens        int
}

func (o *Options) defaults() {
	if o.InferenceTimeout <= 0 {
		o.InferenceTimeout = 30 * time.Second
	}
	if o.SynthesisTimeout <= 0 {
		o.SynthesisTimeout = 60 * time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 512
	}
}

// Router executes queries end to end. Identical in-flight queries are
// collapsed through a single-flight group keyed by fingerprint, so a
// thundering herd on one query costs one fan-out.
type Router struct {
	analyzer *analyzer.Analyzer
	dir      Directory
	client   domain.WorkerClient
	cache    domain.CacheStore
	agg      *metrics.Aggregator
	opts     Options

	sf singleflight.Group

	// test seam
	now func() time.Time
}

// NewRouter wires the router. All collaborators are required except the
// aggregator, which may be nil in tests.
func NewRouter(an *analyzer.Analyzer, dir Directory, client domain.WorkerClient, cache domain.CacheStore, agg *metrics.Aggregator, opts Options) *Router {
	opts.defaults()
	return &Router{
		analyzer: an,
		dir:      dir,
		client:   client,
		cache:    cache,
		agg:      agg,
		opts:     opts,
		now:      time.Now,
	}
}

// Analyze runs the pure analysis pipeline without dispatching.
func (r *Router) Analyze(query string) (domain.QueryAnalysis, domain.RoutingDecision) {
	analysis := r.analyzer.Analyze(query)
	return analysis, r.analyzer.Decide(analysis)
}

// Route executes one query: cache probe, then a single-flighted fan-out
// with optional synthesis. maxTokens <= 0 falls back to the configured
// default. The returned result is owned by the caller.
func (r *Router) Route(ctx context.Context, query string, maxTokens int) (*domain.RouteResult, error) {
	start := r.now()
	fp := queryx.Fingerprint(query)
	if maxTokens <= 0 {
		maxTokens = r.opts.MaxTokens
	}

	if hit, ok, err := r.cache.Get(ctx, fp); err != nil {
		slog.Warn("cache probe failed", slog.Any("error", err))
	} else if ok {
		out := *hit
		out.Metadata.Performance = domain.Performance{
			ResponseTimeMS:     r.now().Sub(start).Milliseconds(),
			EstimatedLatencyMS: hit.Metadata.RoutingDecision.EstimatedLatencyMS,
			Cached:             true,
		}
		r.recordRoute(out.Kind, true)
		return &out, nil
	}

	v, err, _ := r.sf.Do(fp, func() (any, error) {
		return r.execute(ctx, query, fp, maxTokens)
	})
	if err != nil {
		return nil, err
	}
	shared := v.(*domain.RouteResult)

	out := *shared
	out.Metadata.Performance = domain.Performance{
		ResponseTimeMS:     r.now().Sub(start).Milliseconds(),
		EstimatedLatencyMS: shared.Metadata.RoutingDecision.EstimatedLatencyMS,
		Cached:             false,
	}
	r.recordRoute(out.Kind, false)
	return &out, nil
}

func (r *Router) recordRoute(kind domain.RouteKind, cached bool) {
	observability.ObserveRoute(string(kind), cached)
	if r.agg != nil {
		r.agg.Route(kind, cached)
	}
}

// execute runs the fan-out for one fingerprint. It is entered at most
// once per fingerprint at a time.
func (r *Router) execute(ctx context.Context, query, fp string, maxTokens int) (*domain.RouteResult, error) {
	analysis := r.analyzer.Analyze(query)
	decision := r.analyzer.Decide(analysis)

	// Resolve selected workers to live catalogue entries, preserving
	// selection order.
	type target struct {
		idx    int
		worker domain.Worker
	}
	var targets []target
	for i, name := range decision.Selected {
		w, ok := r.dir.Lookup(name)
		if !ok || !r.dir.IsAvailable(name) {
			continue
		}
		targets = append(targets, target{idx: i, worker: w})
	}
	if len(targets) == 0 {
		return nil, domain.Errorf(domain.ErrNoBackends, "none of %s is live", strings.Join(decision.Selected, ", "))
	}

	// Generous ceiling over the estimate so one slow worker cannot hold
	// the whole fan-out past the inference timeout.
	budget := 3*time.Duration(decision.EstimatedLatencyMS)*time.Millisecond + 5*time.Second
	if budget > r.opts.InferenceTimeout {
		budget = r.opts.InferenceTimeout
	}
	fanCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// Slot per selected worker keeps presentation order independent of
	// arrival order.
	responses := make([]*domain.WorkerResponse, len(decision.Selected))
	var (
		errMu      sync.Mutex
		workerErrs []domain.WorkerError
	)
	g, gctx := errgroup.WithContext(fanCtx)
	for _, t := range targets {
		g.Go(func() error {
			gen, err := r.client.Generate(gctx, t.worker, query, maxTokens)
			if err != nil {
				we, ok := domain.AsWorkerError(err)
				if !ok {
					we = &domain.WorkerError{Worker: t.worker.Name, Kind: domain.WorkerErrUnreachable, Detail: err.Error()}
				}
				errMu.Lock()
				workerErrs = append(workerErrs, *we)
				errMu.Unlock()
				slog.Warn("worker call failed",
					slog.String("worker", t.worker.Name),
					slog.String("class", we.Label()))
				return nil
			}
			responses[t.idx] = &domain.WorkerResponse{
				Worker:    t.worker.Name,
				Domain:    t.worker.Domain,
				Text:      gen.Text,
				LatencyMS: gen.LatencyMS,
			}
			return nil
		})
	}
	_ = g.Wait()

	succeeded := make([]domain.WorkerResponse, 0, len(targets))
	for _, resp := range responses {
		if resp != nil {
			succeeded = append(succeeded, *resp)
		}
	}
	if len(succeeded) == 0 {
		return nil, domain.Errorf(domain.ErrNoBackends, "all %d selected workers failed", len(targets))
	}

	result := &domain.RouteResult{
		Query:     query,
		Responses: succeeded,
		Errors:    workerErrs,
		Metadata: domain.Metadata{
			QueryAnalysis:   analysis,
			RoutingDecision: decision,
			Performance: domain.Performance{
				EstimatedLatencyMS: decision.EstimatedLatencyMS,
			},
		},
	}

	switch {
	case len(decision.Selected) == 1:
		result.Kind = domain.RouteSingleAgent
		result.Text = succeeded[0].Text
	case decision.SynthesisRequired && len(succeeded) >= 2:
		r.synthesize(ctx, result, maxTokens)
	default:
		result.Kind = domain.RouteMultiAgent
		result.Text = concatenate(succeeded)
	}

	if err := r.cache.Set(ctx, fp, result); err != nil {
		slog.Warn("cache store failed", slog.Any("error", err))
	}
	return result, nil
}

// synthesize asks the aggregator to merge the successful responses. An
// offline or failing aggregator downgrades the result to a deterministic
// concatenation.
func (r *Router) synthesize(ctx context.Context, result *domain.RouteResult, maxTokens int) {
	name, ok := r.analyzer.SynthesisWorker()
	if !ok {
		result.Kind = domain.RouteDegraded
		result.Text = concatenate(result.Responses)
		return
	}
	w, found := r.dir.Lookup(name)
	if !found || !r.dir.IsAvailable(name) {
		result.Kind = domain.RouteDegraded
		result.Text = concatenate(result.Responses)
		result.Errors = append(result.Errors, domain.WorkerError{
			Worker: name,
			Kind:   domain.WorkerErrUnreachable,
			Detail: "aggregator offline",
		})
		return
	}

	synCtx, cancel := context.WithTimeout(ctx, r.opts.SynthesisTimeout)
	defer cancel()

	gen, err := r.client.Generate(synCtx, w, synthesisPrompt(result.Query, result.Responses), maxTokens)
	if err != nil {
		we, ok := domain.AsWorkerError(err)
		if !ok {
			we = &domain.WorkerError{Worker: name, Kind: domain.WorkerErrUnreachable, Detail: err.Error()}
		}
		result.Kind = domain.RouteDegraded
		result.Text = concatenate(result.Responses)
		result.Errors = append(result.Errors, *we)
		slog.Warn("synthesis failed, downgrading to concatenation",
			slog.String("worker", name),
			slog.String("class", we.Label()))
		return
	}

	result.Kind = domain.RouteSynthesized
	result.Text = gen.Text
	result.Synthesis = &domain.WorkerResponse{
		Worker:    w.Name,
		Domain:    w.Domain,
		Text:      gen.Text,
		LatencyMS: gen.LatencyMS,
	}
}

// synthesisPrompt labels each perspective by worker and asks for a
// unified answer.
func synthesisPrompt(query string, responses []domain.WorkerResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n\nPerspectives received:\n\n", query)
	for _, resp := range responses {
		fmt.Fprintf(&b, "%s: %s\n\n", strings.ToUpper(resp.Worker), resp.Text)
	}
	b.WriteString("Synthesize these perspectives into a unified response:")
	return b.String()
}

// concatenate joins responses deterministically in selection order.
func concatenate(responses []domain.WorkerResponse) string {
	parts := make([]string, 0, len(responses))
	for _, resp := range responses {
		parts = append(parts, fmt.Sprintf("[%s] %s", resp.Worker, resp.Text))
	}
	return strings.Join(parts, "\n\n")
}
