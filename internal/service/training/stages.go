package training

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Progress bands per stage. Each stage publishes within its own band so
// overall progress reads as one monotonic ramp.
const (
	bandCollectionEnd = 30.0
	bandProcessingEnd = 40.0
	bandTrainingEnd   = 70.0
	bandValidationEnd = 90.0
	bandDeploymentEnd = 100.0
)

// datasetSampleCap bounds the number of example rows actually written;
// DatasetCollected still reports the configured target.
const datasetSampleCap = 200

type datasetExample struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
	Domain     string `json:"domain"`
}

// collectDataset writes datasets/training_data.jsonl in chunks,
// publishing progress within the 0-30 band.
func (s *Supervisor) collectDataset(ctx context.Context, key string, cfg domain.TrainingConfig) error {
	dir := s.dir(key, "datasets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("op=training.collectDataset: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, "training_data.jsonl"))
	if err != nil {
		return fmt.Errorf("op=training.collectDataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	rows := cfg.DatasetSizeTarget
	if rows > datasetSampleCap {
		rows = datasetSampleCap
	}
	for i := 0; i < rows; i++ {
		if i%50 == 0 {
			if err := s.pause(ctx); err != nil {
				return err
			}
			pct := bandCollectionEnd * float64(i) / float64(rows)
			s.setProgress(key, pct, fmt.Sprintf("collecting examples %d/%d", i, cfg.DatasetSizeTarget))
		}
		ex := datasetExample{
			Prompt:     fmt.Sprintf("%s task %d", cfg.Domain, i),
			Completion: fmt.Sprintf("%s perspective on task %d", cfg.WorkerName, i),
			Domain:     string(cfg.Domain),
		}
		if err := enc.Encode(ex); err != nil {
			return fmt.Errorf("op=training.collectDataset: %w", err)
		}
	}

	s.mu.Lock()
	if j, ok := s.jobs[key]; ok {
		j.DatasetCollected = cfg.DatasetSizeTarget
	}
	s.mu.Unlock()
	s.setProgress(key, bandCollectionEnd, "dataset collected")
	return s.appendLog(key, "dataset collection finished: %d examples", cfg.DatasetSizeTarget)
}

// processDataset covers dedup, filtering and tokenisation bookkeeping
// in the 30-40 band.
func (s *Supervisor) processDataset(ctx context.Context, key string, cfg domain.TrainingConfig) error {
	for i, step := range []string{"deduplicating", "filtering", "tokenizing"} {
		if err := s.pause(ctx); err != nil {
			return err
		}
		pct := bandCollectionEnd + (bandProcessingEnd-bandCollectionEnd)*float64(i+1)/3
		s.setProgress(key, pct, step)
	}
	return s.appendLog(key, "dataset processed for %s (max_length=%d)", cfg.WorkerName, cfg.MaxLength)
}

type modelConfig struct {
	BaseModel    string  `json:"base_model"`
	WorkerKey    string  `json:"worker_key"`
	Domain       string  `json:"domain"`
	Epochs       int     `json:"epochs"`
	BatchSize    int     `json:"batch_size"`
	LearningRate float64 `json:"learning_rate"`
	MaxLength    int     `json:"max_length"`
}

// trainModel simulates the epoch loop in the 40-70 band and writes the
// fine-tuned model config under models/.
func (s *Supervisor) trainModel(ctx context.Context, key string, cfg domain.TrainingConfig) error {
	dir := s.dir(key, "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("op=training.trainModel: %w", err)
	}

	loss := 2.5
	for epoch := 1; epoch <= cfg.TrainingEpochs; epoch++ {
		if err := s.pause(ctx); err != nil {
			return err
		}
		loss *= 0.6
		pct := bandProcessingEnd + (bandTrainingEnd-bandProcessingEnd)*float64(epoch)/float64(cfg.TrainingEpochs)
		s.setProgress(key, pct, fmt.Sprintf("epoch %d/%d loss=%.3f", epoch, cfg.TrainingEpochs, loss))
	}

	s.mu.Lock()
	if j, ok := s.jobs[key]; ok {
		j.TrainingLoss = &loss
	}
	s.mu.Unlock()

	mc := modelConfig{
		BaseModel:    cfg.BaseModel,
		WorkerKey:    key,
		Domain:       string(cfg.Domain),
		Epochs:       cfg.TrainingEpochs,
		BatchSize:    cfg.BatchSize,
		LearningRate: cfg.LearningRate,
		MaxLength:    cfg.MaxLength,
	}
	if err := writeJSON(filepath.Join(dir, "config.json"), mc); err != nil {
		return fmt.Errorf("op=training.trainModel: %w", err)
	}
	s.setProgress(key, bandTrainingEnd, "model trained")
	return s.appendLog(key, "training finished: final loss %.3f", loss)
}

// validate scores the specialist against the base model in the 70-90
// band. Missing the advantage target is a warning, not a failure.
func (s *Supervisor) validate(ctx context.Context, key string, cfg domain.TrainingConfig) error {
	if err := s.pause(ctx); err != nil {
		return err
	}
	s.setProgress(key, (bandTrainingEnd+bandValidationEnd)/2, "running validation set")

	generalist, specialist := simulatedScores(key)
	advantage := (specialist - generalist) / generalist
	report := domain.ValidationReport{
		GeneralistScore: generalist,
		SpecialistScore: specialist,
		Advantage:       advantage,
		MeetsTarget:     advantage >= cfg.AdvantageTarget,
		ValidationSize:  cfg.ValidationSize,
	}

	dir := s.dir(key, "results")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("op=training.validate: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, "validation.json"), report); err != nil {
		return fmt.Errorf("op=training.validate: %w", err)
	}

	s.mu.Lock()
	if j, ok := s.jobs[key]; ok {
		j.Validation = &report
		j.ValidationScore = &report.SpecialistScore
		j.SpecialistAdvantage = &report.Advantage
		if !report.MeetsTarget {
			j.Errors = append(j.Errors, fmt.Sprintf(
				"warning: advantage %.3f below target %.3f", advantage, cfg.AdvantageTarget))
		}
	}
	s.mu.Unlock()

	if !report.MeetsTarget {
		slog.Warn("specialist advantage below target",
			slog.String("worker", key),
			slog.Float64("advantage", advantage),
			slog.Float64("target", cfg.AdvantageTarget))
	}
	s.setProgress(key, bandValidationEnd, "validation recorded")
	return s.appendLog(key, "validation: generalist=%.3f specialist=%.3f advantage=%.3f", generalist, specialist, advantage)
}

type serviceConfig struct {
	WorkerName string `json:"worker_name"`
	Port       int    `json:"port"`
	Domain     string `json:"domain"`
	ModelPath  string `json:"model_path"`
}

// deploy copies artefacts, writes the service config, registers the
// worker, and confirms liveness. Any miss aborts the job.
func (s *Supervisor) deploy(ctx context.Context, key string, cfg domain.TrainingConfig) error {
	if err := s.pause(ctx); err != nil {
		return err
	}
	s.setProgress(key, (bandValidationEnd+bandDeploymentEnd)/2, "deploying worker")

	sc := serviceConfig{
		WorkerName: cfg.WorkerName,
		Port:       cfg.Port,
		Domain:     string(cfg.Domain),
		ModelPath:  s.dir(key, "models"),
	}
	if err := writeJSON(filepath.Join(s.workspace, key, "service_config.json"), sc); err != nil {
		return fmt.Errorf("op=training.deploy: %w", err)
	}

	if !s.opts.SkipHealthProbe && s.prober != nil {
		worker, ok := s.registrar.Lookup(cfg.WorkerName)
		if !ok {
			return fmt.Errorf("op=training.deploy: worker %q not in catalogue", cfg.WorkerName)
		}
		probe := func() error {
			probeCtx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
			defer cancel()
			_, err := s.prober.Probe(probeCtx, worker)
			return err
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
		if err := backoff.Retry(probe, policy); err != nil {
			return fmt.Errorf("op=training.deploy: initial health probe: %w", err)
		}
	}

	s.registrar.MarkRunning(cfg.WorkerName)
	s.setProgress(key, bandDeploymentEnd, "deployed")
	return s.appendLog(key, "deployed %s on port %d", cfg.WorkerName, cfg.Port)
}

// simulatedScores derives stable pseudo-scores from the worker key so
// reruns produce identical reports.
func simulatedScores(key string) (generalist, specialist float64) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	n := h.Sum32()
	generalist = 0.45 + float64(n%100)/1000.0  // 0.45-0.549
	specialist = generalist * (1.25 + float64(n%7)/20.0)
	return generalist, specialist
}

// appendLog writes one line to logs/training.log.
func (s *Supervisor) appendLog(key, format string, args ...any) error {
	dir := s.dir(key, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("op=training.appendLog: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "training.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("op=training.appendLog: %w", err)
	}
	defer func() { _ = f.Close() }()
	line := fmt.Sprintf("%s %s\n", s.now().Format("2006-01-02T15:04:05Z07:00"), fmt.Sprintf(format, args...))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("op=training.appendLog: %w", err)
	}
	return nil
}

// Report is the run summary written to training_report.json.
type Report struct {
	GeneratedAt string               `json:"generated_at"`
	Jobs        []domain.TrainingJob `json:"jobs"`
	Succeeded   []string             `json:"succeeded"`
	Failed      []string             `json:"failed"`
}

// WriteReport writes training_report.json at the workspace root.
func (s *Supervisor) WriteReport() error {
	jobs := s.Jobs()
	rep := Report{GeneratedAt: s.now().UTC().Format("2006-01-02T15:04:05Z"), Jobs: jobs}
	for _, j := range jobs {
		if j.Stage == domain.StageComplete {
			rep.Succeeded = append(rep.Succeeded, j.Key)
		} else if j.Stage == domain.StageFailed {
			rep.Failed = append(rep.Failed, j.Key)
		}
	}
	if err := os.MkdirAll(s.workspace, 0o755); err != nil {
		return fmt.Errorf("op=training.WriteReport: %w", err)
	}
	if err := writeJSON(filepath.Join(s.workspace, "training_report.json"), rep); err != nil {
		return fmt.Errorf("op=training.WriteReport: %w", err)
	}
	slog.Info("training report written",
		slog.String("path", filepath.Join(s.workspace, "training_report.json")),
		slog.String("succeeded", strings.Join(rep.Succeeded, ",")),
		slog.String("failed", strings.Join(rep.Failed, ",")))
	return nil
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
