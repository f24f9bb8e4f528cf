package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/s2intelligence/ninefold-gateway/internal/config"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

type fakeProber struct {
	mu   sync.Mutex
	up   map[string]bool
	errs map[string]error
}

func (f *fakeProber) Probe(_ context.Context, w domain.Worker) (domain.WorkerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[w.Name]; ok {
		return domain.WorkerStatus{}, err
	}
	if !f.up[w.Name] {
		return domain.WorkerStatus{}, &domain.WorkerError{Worker: w.Name, Kind: domain.WorkerErrUnreachable}
	}
	return domain.WorkerStatus{ResponseTimeMS: 12, RequestsServed: 42, UptimeSeconds: 100}, nil
}

func (f *fakeProber) set(name string, up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up[name] = up
}

func newRegistry(up ...string) (*Registry, *fakeProber) {
	p := &fakeProber{up: map[string]bool{}, errs: map[string]error{}}
	for _, n := range up {
		p.up[n] = true
	}
	return New(config.DefaultCatalogue(), p, 30*time.Second, time.Second), p
}

func TestProbeAll_PublishesStatus(t *testing.T) {
	r, _ := newRegistry("rhys", "ake")
	r.ProbeAll(context.Background())

	st, ok := r.Status("rhys")
	require.True(t, ok)
	require.Equal(t, domain.WorkerRunning, st.State)
	require.Equal(t, int64(42), st.RequestsServed)
	require.False(t, st.LastProbeAt.IsZero())

	st, ok = r.Status("wraith")
	require.True(t, ok)
	require.Equal(t, domain.WorkerStopped, st.State)

	require.Equal(t, []string{"ake", "rhys"}, r.Available())
}

func TestProbeAll_ErrorKeepsEntry(t *testing.T) {
	r, p := newRegistry("rhys")
	p.errs["rhys"] = &domain.WorkerError{Worker: "rhys", Kind: domain.WorkerErrHTTP, Status: 500}
	r.ProbeAll(context.Background())

	st, ok := r.Status("rhys")
	require.True(t, ok)
	require.Equal(t, domain.WorkerErrored, st.State)
	require.Empty(t, r.Available())
	require.Len(t, r.List(), 9)
}

func TestAvailability_ExpiresAfterStaleProbe(t *testing.T) {
	r, _ := newRegistry("rhys")
	base := time.Now()
	r.now = func() time.Time { return base }
	r.ProbeAll(context.Background())
	require.True(t, r.IsAvailable("rhys"))

	// Inside the 3x window the worker still counts as live.
	r.now = func() time.Time { return base.Add(89 * time.Second) }
	require.True(t, r.IsAvailable("rhys"))

	r.now = func() time.Time { return base.Add(91 * time.Second) }
	require.False(t, r.IsAvailable("rhys"))
}

func TestFindByDomain(t *testing.T) {
	r, _ := newRegistry()
	name, ok := r.FindByDomain(domain.DomainSynthesis)
	require.True(t, ok)
	require.Equal(t, "ake", name)
	_, ok = r.FindByDomain(domain.Domain("nope"))
	require.False(t, ok)
}

func TestRecommend_KeywordScoring(t *testing.T) {
	r, _ := newRegistry("wraith", "rhys")
	r.ProbeAll(context.Background())

	// Two security keywords beat one architecture keyword.
	require.Equal(t, "wraith", r.Recommend("threat analysis of the system"))
	require.Equal(t, "rhys", r.Recommend("architecture review"))
}

func TestRecommend_FallsBackToLiveWorker(t *testing.T) {
	r, _ := newRegistry("kairos")
	r.ProbeAll(context.Background())
	// Best match (wraith) is down; fall back to a live worker.
	require.Equal(t, "kairos", r.Recommend("security threat"))
}

func TestRecommend_NothingLive(t *testing.T) {
	r, _ := newRegistry()
	r.ProbeAll(context.Background())
	require.Equal(t, "", r.Recommend("security threat"))
}

func TestMarkRunning_RegistersDeployedWorker(t *testing.T) {
	r, _ := newRegistry()
	require.False(t, r.IsAvailable("flux"))
	r.MarkRunning("flux")
	require.True(t, r.IsAvailable("flux"))
	// Unknown names are ignored.
	r.MarkRunning("ghost")
	_, ok := r.Status("ghost")
	require.False(t, ok)
}

func TestStartStop_MonitorLifecycle(t *testing.T) {
	p := &fakeProber{up: map[string]bool{"rhys": true}, errs: map[string]error{}}
	r := New(config.DefaultCatalogue(), p, 10*time.Millisecond, time.Second)
	r.Start(context.Background())
	defer r.Stop()

	require.Eventually(t, func() bool { return r.IsAvailable("rhys") }, time.Second, 5*time.Millisecond)

	p.set("rhys", false)
	require.Eventually(t, func() bool { return !r.IsAvailable("rhys") }, time.Second, 5*time.Millisecond)
}
