// Package registry holds the immutable worker catalogue and the mutable
// runtime status observed by the health monitor.
package registry

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/s2intelligence/ninefold-gateway/internal/adapter/observability"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Keyword dictionaries used by Recommend, scored per worker key. Ties
// break by catalogue order.
var recommendKeywords = map[string][]string{
	"ake":       {"synthesis", "integrate", "combine", "multiple", "collective", "unity"},
	"rhys":      {"architecture", "system", "design", "infrastructure", "scalability", "technical"},
	"ketheriel": {"wisdom", "philosophy", "ethics", "meaning", "contemplat", "deep"},
	"wraith":    {"security", "vulnerability", "protect", "threat", "analysis", "risk"},
	"flux":      {"change", "transform", "adapt", "evolution", "transition"},
	"kairos":    {"timing", "when", "opportunity", "moment", "schedule"},
	"chalyth":   {"strategy", "plan", "coordinate", "organize", "tactics"},
	"seraphel":  {"communication", "dialogue", "message", "speak", "harmony"},
	"vireon":    {"integrity", "boundary", "protect", "guard", "maintain"},
}

// Registry is safe for concurrent use. The catalogue is read-only after
// construction; status records are replaced wholesale by the probe task
// so readers always see a consistent snapshot.
type Registry struct {
	workers  []domain.Worker
	byName   map[string]int
	byDomain map[domain.Domain]string

	prober   domain.HealthProber
	interval time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	status map[string]*domain.WorkerStatus

	cancel context.CancelFunc
	done   chan struct{}

	// test seam
	now func() time.Time
}

// New builds a registry over the catalogue. The prober is used by the
// background monitor started with Start.
func New(catalogue []domain.Worker, prober domain.HealthProber, probeInterval, probeTimeout time.Duration) *Registry {
	byName := make(map[string]int, len(catalogue))
	byDomain := make(map[domain.Domain]string, len(catalogue))
	status := make(map[string]*domain.WorkerStatus, len(catalogue))
	for i, w := range catalogue {
		byName[w.Name] = i
		byDomain[w.Domain] = w.Name
		status[w.Name] = &domain.WorkerStatus{State: domain.WorkerUnknown}
	}
	return &Registry{
		workers:  catalogue,
		byName:   byName,
		byDomain: byDomain,
		prober:   prober,
		interval: probeInterval,
		timeout:  probeTimeout,
		status:   status,
		now:      time.Now,
	}
}

// List returns the catalogue in declaration order.
func (r *Registry) List() []domain.Worker {
	out := make([]domain.Worker, len(r.workers))
	copy(out, r.workers)
	return out
}

// Lookup resolves a worker by name.
func (r *Registry) Lookup(name string) (domain.Worker, bool) {
	i, ok := r.byName[name]
	if !ok {
		return domain.Worker{}, false
	}
	return r.workers[i], true
}

// FindByDomain resolves the single worker serving a domain.
func (r *Registry) FindByDomain(d domain.Domain) (string, bool) {
	name, ok := r.byDomain[d]
	return name, ok
}

// Status returns a snapshot of a worker's runtime state.
func (r *Registry) Status(name string) (domain.WorkerStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.status[name]
	if !ok {
		return domain.WorkerStatus{}, false
	}
	return *st, true
}

// IsAvailable reports whether a worker counts as live: last successful
// probe within 3x the probe interval.
func (r *Registry) IsAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isAvailableLocked(name)
}

func (r *Registry) isAvailableLocked(name string) bool {
	st, ok := r.status[name]
	if !ok || st.State != domain.WorkerRunning {
		return false
	}
	return r.now().Sub(st.LastProbeAt) <= 3*r.interval
}

// Available returns the names of live workers in catalogue order.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, w := range r.workers {
		if r.isAvailableLocked(w.Name) {
			out = append(out, w.Name)
		}
	}
	return out
}

// Recommend scores the query against the per-worker keyword dictionary
// and returns the best currently-available worker, or "" when nothing
// matches or nothing is live.
func (r *Registry) Recommend(query string) string {
	lower := strings.ToLower(query)

	bestName := ""
	bestScore := 0
	for _, w := range r.workers {
		score := 0
		for _, kw := range recommendKeywords[w.Name] {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestName = w.Name
		}
	}
	if bestName != "" && r.IsAvailable(bestName) {
		return bestName
	}
	// Fall back to any live worker.
	if live := r.Available(); len(live) > 0 {
		return live[0]
	}
	return ""
}

// MarkRunning records an externally observed deployment (the training
// supervisor registers freshly deployed workers this way). The next
// probe cycle confirms or reverts it.
func (r *Registry) MarkRunning(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.status[name]; !ok {
		return
	}
	r.status[name] = &domain.WorkerStatus{State: domain.WorkerRunning, LastProbeAt: r.now()}
}

// Start launches the periodic health monitor. It probes every worker
// immediately, then on each tick, until Stop is called or ctx ends.
func (r *Registry) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		r.ProbeAll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.ProbeAll(ctx)
			}
		}
	}()
}

// Stop halts the monitor and waits for the in-flight sweep to finish.
func (r *Registry) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

// ProbeAll sweeps every worker concurrently. Probe failures transition
// the entry to stopped or error but never remove it, and never block
// dispatch: readers keep seeing the previous snapshot until the new one
// is published.
func (r *Registry) ProbeAll(ctx context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range r.workers {
		g.Go(func() error {
			r.probeOne(ctx, w)
			return nil
		})
	}
	_ = g.Wait()

	live := len(r.Available())
	observability.WorkersLive.Set(float64(live))
	slog.Debug("health sweep complete", slog.Int("running", live), slog.Int("total", len(r.workers)))
}

func (r *Registry) probeOne(ctx context.Context, w domain.Worker) {
	probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	st, err := r.prober.Probe(probeCtx, w)
	now := r.now()
	if err != nil {
		next := &domain.WorkerStatus{State: domain.WorkerStopped, LastProbeAt: now}
		if we, ok := domain.AsWorkerError(err); ok && we.Kind != domain.WorkerErrUnreachable {
			next.State = domain.WorkerErrored
		}
		slog.Warn("worker probe failed",
			slog.String("worker", w.Name),
			slog.Int("port", w.Port),
			slog.Any("error", err))
		r.publish(w.Name, next)
		return
	}
	st.State = domain.WorkerRunning
	st.LastProbeAt = now
	r.publish(w.Name, &st)
}

func (r *Registry) publish(name string, st *domain.WorkerStatus) {
	r.mu.Lock()
	r.status[name] = st
	r.mu.Unlock()
}
