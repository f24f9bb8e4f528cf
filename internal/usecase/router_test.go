package usecase

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/s2intelligence/ninefold-gateway/internal/adapter/cache"
	"github.com/s2intelligence/ninefold-gateway/internal/config"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
	"github.com/s2intelligence/ninefold-gateway/internal/service/analyzer"
	"github.com/s2intelligence/ninefold-gateway/internal/service/metrics"
)

type fakeDirectory struct {
	workers map[string]domain.Worker
	live    map[string]bool
}

func newFakeDirectory(live ...string) *fakeDirectory {
	d := &fakeDirectory{workers: map[string]domain.Worker{}, live: map[string]bool{}}
	for _, w := range config.DefaultCatalogue() {
		d.workers[w.Name] = w
	}
	for _, n := range live {
		d.live[n] = true
	}
	return d
}

func (d *fakeDirectory) Lookup(name string) (domain.Worker, bool) {
	w, ok := d.workers[name]
	return w, ok
}

func (d *fakeDirectory) IsAvailable(name string) bool { return d.live[name] }

func (d *fakeDirectory) Available() []string {
	var out []string
	for n, up := range d.live {
		if up {
			out = append(out, n)
		}
	}
	return out
}

type fakeClient struct {
	mu    sync.Mutex
	calls atomic.Int64
	fail  map[string]error
	delay time.Duration
	// prompts and maxTokens record the last call per worker.
	prompts   map[string]string
	maxTokens map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{fail: map[string]error{}, prompts: map[string]string{}, maxTokens: map[string]int{}}
}

func (c *fakeClient) Generate(ctx context.Context, w domain.Worker, prompt string, maxTokens int) (domain.Generation, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.Generation{}, &domain.WorkerError{Worker: w.Name, Kind: domain.WorkerErrTimeout}
		case <-time.After(c.delay):
		}
	}
	c.mu.Lock()
	c.prompts[w.Name] = prompt
	c.maxTokens[w.Name] = maxTokens
	err := c.fail[w.Name]
	c.mu.Unlock()
	if err != nil {
		return domain.Generation{}, err
	}
	return domain.Generation{Text: "reply from " + w.Name, LatencyMS: 7}, nil
}

func newRouter(t *testing.T, dir *fakeDirectory, client *fakeClient) *Router {
	t.Helper()
	an, err := analyzer.New(config.DefaultCatalogue())
	require.NoError(t, err)
	return NewRouter(an, dir, client, cache.NewMemory(time.Hour, 100), metrics.New(), Options{})
}

func TestRoute_SingleAgent(t *testing.T) {
	dir := newFakeDirectory("rhys")
	client := newFakeClient()
	r := newRouter(t, dir, client)

	res, err := r.Route(context.Background(), "design a scalable API", 0)
	require.NoError(t, err)
	require.Equal(t, domain.RouteSingleAgent, res.Kind)
	require.Equal(t, "reply from rhys", res.Text)
	require.Len(t, res.Responses, 1)
	require.Equal(t, "rhys", res.Responses[0].Worker)
	require.False(t, res.Metadata.Performance.Cached)
	require.Empty(t, res.Errors)
}

func TestRoute_MaxTokensDefaultsAndOverride(t *testing.T) {
	dir := newFakeDirectory("rhys")
	client := newFakeClient()
	r := newRouter(t, dir, client)

	_, err := r.Route(context.Background(), "design a scalable API", 0)
	require.NoError(t, err)
	require.Equal(t, 512, client.maxTokens["rhys"])

	_, err = r.Route(context.Background(), "design a modern API", 128)
	require.NoError(t, err)
	require.Equal(t, 128, client.maxTokens["rhys"])
}

func TestRoute_CacheHitSkipsWorkers(t *testing.T) {
	dir := newFakeDirectory("rhys")
	client := newFakeClient()
	r := newRouter(t, dir, client)

	ctx := context.Background()
	first, err := r.Route(ctx, "design a scalable API", 0)
	require.NoError(t, err)
	callsAfterFirst := client.calls.Load()

	second, err := r.Route(ctx, "design a scalable API", 0)
	require.NoError(t, err)
	require.True(t, second.Metadata.Performance.Cached)
	require.Equal(t, first.Text, second.Text)
	require.Equal(t, callsAfterFirst, client.calls.Load())
}

func TestRoute_FingerprintNormalisesWhitespace(t *testing.T) {
	dir := newFakeDirectory("rhys")
	client := newFakeClient()
	r := newRouter(t, dir, client)

	ctx := context.Background()
	_, err := r.Route(ctx, "design a scalable API", 0)
	require.NoError(t, err)
	res, err := r.Route(ctx, "  design   a scalable API  ", 0)
	require.NoError(t, err)
	require.True(t, res.Metadata.Performance.Cached)
}

func TestRoute_MultiAgentWithSynthesis(t *testing.T) {
	dir := newFakeDirectory("rhys", "wraith", "flux", "ake")
	client := newFakeClient()
	r := newRouter(t, dir, client)

	res, err := r.Route(context.Background(), "design a secure api that we can adapt later", 0)
	require.NoError(t, err)
	require.Equal(t, domain.RouteSynthesized, res.Kind)
	require.Len(t, res.Responses, 3)
	require.Equal(t, []string{"rhys", "wraith", "flux"},
		[]string{res.Responses[0].Worker, res.Responses[1].Worker, res.Responses[2].Worker})
	require.NotNil(t, res.Synthesis)
	require.Equal(t, "ake", res.Synthesis.Worker)
	require.Equal(t, res.Synthesis.Text, res.Text)

	// The synthesis prompt carries the query and every perspective.
	prompt := client.prompts["ake"]
	require.Contains(t, prompt, "Original query: design a secure api that we can adapt later")
	require.Contains(t, prompt, "RHYS: reply from rhys")
	require.Contains(t, prompt, "WRAITH: reply from wraith")
	require.Contains(t, prompt, "Synthesize these perspectives into a unified response:")
}

func TestRoute_DegradedWhenAggregatorOffline(t *testing.T) {
	dir := newFakeDirectory("rhys", "wraith", "flux")
	client := newFakeClient()
	r := newRouter(t, dir, client)

	res, err := r.Route(context.Background(), "design a secure api that we can adapt later", 0)
	require.NoError(t, err)
	require.Equal(t, domain.RouteDegraded, res.Kind)
	require.Nil(t, res.Synthesis)
	require.Equal(t, "[rhys] reply from rhys\n\n[wraith] reply from wraith\n\n[flux] reply from flux", res.Text)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "ake", res.Errors[0].Worker)
	require.Equal(t, domain.WorkerErrUnreachable, res.Errors[0].Kind)
}

func TestRoute_PartialFailureKeepsSurvivors(t *testing.T) {
	dir := newFakeDirectory("rhys", "wraith", "flux", "ake")
	client := newFakeClient()
	client.fail["wraith"] = &domain.WorkerError{Worker: "wraith", Kind: domain.WorkerErrHTTP, Status: 500}
	r := newRouter(t, dir, client)

	res, err := r.Route(context.Background(), "design a secure api that we can adapt later", 0)
	require.NoError(t, err)
	require.Len(t, res.Responses, 2)
	require.Equal(t, "rhys", res.Responses[0].Worker)
	require.Equal(t, "flux", res.Responses[1].Worker)
	require.Len(t, res.Errors, 1)
	require.Equal(t, "HTTP(500)", res.Errors[0].Label())
	require.Equal(t, domain.RouteSynthesized, res.Kind)
}

func TestRoute_SingleSurvivorSkipsSynthesis(t *testing.T) {
	dir := newFakeDirectory("rhys", "wraith", "flux", "ake")
	client := newFakeClient()
	client.fail["wraith"] = &domain.WorkerError{Worker: "wraith", Kind: domain.WorkerErrHTTP, Status: 500}
	client.fail["flux"] = &domain.WorkerError{Worker: "flux", Kind: domain.WorkerErrUnreachable}
	r := newRouter(t, dir, client)

	res, err := r.Route(context.Background(), "design a secure api that we can adapt later", 0)
	require.NoError(t, err)
	require.Equal(t, domain.RouteMultiAgent, res.Kind)
	require.Nil(t, res.Synthesis)
	require.Len(t, res.Responses, 1)
	require.Len(t, res.Errors, 2)
	// The aggregator is never consulted for a lone perspective.
	require.NotContains(t, client.prompts, "ake")
}

func TestRoute_NoBackends(t *testing.T) {
	dir := newFakeDirectory()
	client := newFakeClient()
	r := newRouter(t, dir, client)

	_, err := r.Route(context.Background(), "design a scalable API", 0)
	require.ErrorIs(t, err, domain.ErrNoBackends)
}

func TestRoute_AllWorkersFailing(t *testing.T) {
	dir := newFakeDirectory("rhys")
	client := newFakeClient()
	client.fail["rhys"] = &domain.WorkerError{Worker: "rhys", Kind: domain.WorkerErrUnreachable}
	r := newRouter(t, dir, client)

	_, err := r.Route(context.Background(), "design a scalable API", 0)
	require.ErrorIs(t, err, domain.ErrNoBackends)
}

func TestRoute_SingleFlightCollapsesConcurrentIdenticalQueries(t *testing.T) {
	dir := newFakeDirectory("rhys")
	client := newFakeClient()
	client.delay = 50 * time.Millisecond
	r := newRouter(t, dir, client)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Route(context.Background(), "design a scalable API", 0)
			if err == nil && res.Text != "reply from rhys" {
				err = fmt.Errorf("unexpected text %q", res.Text)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), client.calls.Load())
}

func TestRoute_DistinctQueriesAreNotCollapsed(t *testing.T) {
	dir := newFakeDirectory("rhys")
	client := newFakeClient()
	r := newRouter(t, dir, client)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := r.Route(ctx, fmt.Sprintf("design a scalable API v%d", i), 0)
		require.NoError(t, err)
	}
	require.Equal(t, int64(3), client.calls.Load())
}

func TestAnalyze_NoDispatch(t *testing.T) {
	dir := newFakeDirectory()
	client := newFakeClient()
	r := newRouter(t, dir, client)

	analysis, decision := r.Analyze("design a secure api that we can adapt later")
	require.Equal(t, []string{"rhys", "wraith", "flux"}, decision.Selected)
	require.True(t, analysis.RequiresSynthesis)
	require.Equal(t, int64(0), client.calls.Load())
}
