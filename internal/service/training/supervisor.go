// Package training supervises the per-worker fine-tuning pipeline.
//
// Each job is a forward-only state machine over the training stages.
// Stage work here is simulated at artefact level: datasets, model
// configs, validation reports and logs are written to the workspace
// tree the way the real trainer lays them out, so everything downstream
// (reporting, deployment, registry registration) exercises real paths.
package training

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/s2intelligence/ninefold-gateway/internal/adapter/observability"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Registrar is the registry surface the supervisor needs after a
// successful deployment.
type Registrar interface {
	MarkRunning(name string)
	Lookup(name string) (domain.Worker, bool)
}

// Options tunes the supervisor.
type Options struct {
	// StepDelay paces simulated stage work; tests set it near zero.
	StepDelay time.Duration
	// ProbeTimeout bounds each deployment health probe attempt.
	ProbeTimeout time.Duration
	// SkipHealthProbe turns off the post-deployment probe (no prober
	// wired, or simulated deployments).
	SkipHealthProbe bool
}

// Supervisor drives training jobs. Safe for concurrent use; job records
// are guarded by one mutex and copied out on read.
type Supervisor struct {
	workspace string
	configs   map[string]domain.TrainingConfig
	registrar Registrar
	prober    domain.HealthProber
	opts      Options

	mu      sync.Mutex
	jobs    map[string]*domain.TrainingJob
	cancels map[string]context.CancelCauseFunc

	now func() time.Time
}

// New builds a supervisor rooted at workspace. prober may be nil when
// opts.SkipHealthProbe is set.
func New(workspace string, configs map[string]domain.TrainingConfig, registrar Registrar, prober domain.HealthProber, opts Options) *Supervisor {
	if opts.StepDelay <= 0 {
		opts.StepDelay = 200 * time.Millisecond
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	return &Supervisor{
		workspace: workspace,
		configs:   configs,
		registrar: registrar,
		prober:    prober,
		opts:      opts,
		jobs:      make(map[string]*domain.TrainingJob),
		cancels:   make(map[string]context.CancelCauseFunc),
		now:       time.Now,
	}
}

// Job returns a copy of the supervision record for a worker key.
func (s *Supervisor) Job(key string) (domain.TrainingJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok {
		return domain.TrainingJob{}, false
	}
	return *j, true
}

// Jobs returns copies of every supervision record.
func (s *Supervisor) Jobs() []domain.TrainingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.TrainingJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// Cancel aborts a running job. The job transitions to Failed with the
// cancellation recorded.
func (s *Supervisor) Cancel(key string) {
	s.mu.Lock()
	cancel := s.cancels[key]
	s.mu.Unlock()
	if cancel != nil {
		cancel(fmt.Errorf("cancelled"))
	}
}

// Run executes one worker's full pipeline and blocks until it finishes.
func (s *Supervisor) Run(ctx context.Context, key string) error {
	cfg, ok := s.configs[key]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "no training config for %q", key)
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	job := &domain.TrainingJob{
		ID:        uuid.NewString(),
		Key:       key,
		Config:    cfg,
		Stage:     domain.StageIdle,
		StartedAt: s.now(),
	}
	est := job.StartedAt.Add(time.Duration(s.stepCount(cfg)) * s.opts.StepDelay)
	job.EstimatedCompletion = &est
	s.mu.Lock()
	s.jobs[key] = job
	s.cancels[key] = cancel
	s.mu.Unlock()

	slog.Info("training job started", slog.String("worker", key), slog.String("job_id", job.ID))

	stages := []struct {
		stage domain.TrainingStage
		run   func(context.Context, string, domain.TrainingConfig) error
	}{
		{domain.StageDatasetCollection, s.collectDataset},
		{domain.StageDatasetProcessing, s.processDataset},
		{domain.StageModelTraining, s.trainModel},
		{domain.StageValidation, s.validate},
		{domain.StageDeployment, s.deploy},
	}
	for _, st := range stages {
		if err := jobCtx.Err(); err != nil {
			return s.fail(key, st.stage, context.Cause(jobCtx))
		}
		if !s.advance(key, st.stage) {
			return s.fail(key, st.stage, fmt.Errorf("illegal transition to %s", st.stage))
		}
		if err := st.run(jobCtx, key, cfg); err != nil {
			return s.fail(key, st.stage, err)
		}
	}

	s.advance(key, domain.StageComplete)
	s.setProgress(key, 100, "complete")
	observability.TrainingJobsTotal.WithLabelValues(string(domain.StageComplete)).Inc()
	slog.Info("training job complete", slog.String("worker", key))
	return nil
}

// RunSequential trains the given workers one at a time.
func (s *Supervisor) RunSequential(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := s.Run(ctx, key); err != nil {
			slog.Error("training job failed", slog.String("worker", key), slog.Any("error", err))
		}
	}
	return s.WriteReport()
}

// RunParallel trains every given worker concurrently.
func (s *Supervisor) RunParallel(ctx context.Context, keys []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range keys {
		g.Go(func() error {
			if err := s.Run(gctx, key); err != nil {
				slog.Error("training job failed", slog.String("worker", key), slog.Any("error", err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return s.WriteReport()
}

// RunPhases trains phase by phase: phases run sequentially, jobs inside
// a phase run in parallel.
func (s *Supervisor) RunPhases(ctx context.Context, phases [][]string) error {
	for i, phase := range phases {
		slog.Info("training phase started", slog.Int("phase", i+1), slog.Any("workers", phase))
		g, gctx := errgroup.WithContext(ctx)
		for _, key := range phase {
			g.Go(func() error {
				if err := s.Run(gctx, key); err != nil {
					slog.Error("training job failed", slog.String("worker", key), slog.Any("error", err))
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return s.WriteReport()
}

// advance moves a job forward, enforcing the one-way stage order.
func (s *Supervisor) advance(key string, to domain.TrainingStage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok || !j.Stage.CanTransition(to) {
		return false
	}
	j.Stage = to
	return true
}

// fail transitions the job to Failed and records the stage and cause.
func (s *Supervisor) fail(key string, stage domain.TrainingStage, cause error) error {
	sf := &domain.StageFailure{Stage: stage, Detail: "stage aborted", Err: cause}

	s.mu.Lock()
	if j, ok := s.jobs[key]; ok && j.Stage.CanTransition(domain.StageFailed) {
		j.Stage = domain.StageFailed
		j.Errors = append(j.Errors, sf.Error())
		j.CurrentStep = fmt.Sprintf("failed during %s", stage)
	}
	s.mu.Unlock()

	observability.TrainingJobsTotal.WithLabelValues(string(domain.StageFailed)).Inc()
	slog.Error("training stage failed",
		slog.String("worker", key),
		slog.String("stage", string(stage)),
		slog.Any("error", cause))
	return sf
}

// setProgress updates progress with a monotonic clamp: published
// progress never moves backwards.
func (s *Supervisor) setProgress(key string, pct float64, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[key]
	if !ok {
		return
	}
	if pct > j.ProgressPct {
		j.ProgressPct = pct
	}
	j.CurrentStep = step
}

// stepCount estimates the number of paced steps a full run takes, used
// only for the advertised completion estimate.
func (s *Supervisor) stepCount(cfg domain.TrainingConfig) int {
	rows := cfg.DatasetSizeTarget
	if rows > datasetSampleCap {
		rows = datasetSampleCap
	}
	return rows/50 + 3 + cfg.TrainingEpochs + 2
}

func (s *Supervisor) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-time.After(s.opts.StepDelay):
		return nil
	}
}

func (s *Supervisor) dir(key, sub string) string {
	return filepath.Join(s.workspace, key, sub)
}
