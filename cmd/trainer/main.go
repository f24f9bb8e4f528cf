// Command trainer runs the fine-tuning pipeline for the worker fleet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/s2intelligence/ninefold-gateway/internal/adapter/observability"
	"github.com/s2intelligence/ninefold-gateway/internal/adapter/workerclient"
	"github.com/s2intelligence/ninefold-gateway/internal/config"
	"github.com/s2intelligence/ninefold-gateway/internal/domain"
	"github.com/s2intelligence/ninefold-gateway/internal/service/registry"
	"github.com/s2intelligence/ninefold-gateway/internal/service/training"
)

func main() {
	var (
		mode       = flag.String("mode", "phase-parallel", "orchestration mode: sequential | parallel | phase-parallel")
		workspace  = flag.String("workspace", "", "artefact tree root (defaults to TRAINING_WORKSPACE)")
		workers    = flag.String("workers", "", "comma-separated worker keys; empty trains the full fleet")
		configPath = flag.String("config", "", "optional YAML with per-worker training overrides")
		stepDelay  = flag.Duration("step-delay", 2*time.Second, "pacing between simulated stage steps")
		skipProbe  = flag.Bool("skip-probe", false, "skip the post-deployment health probe")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	catalogue, err := config.LoadCatalogue(cfg.WorkerCatalogue)
	if err != nil {
		slog.Error("catalogue load failed", slog.Any("error", err))
		os.Exit(1)
	}

	ws := *workspace
	if ws == "" {
		ws = cfg.TrainingWorkspace
	}

	configs, err := training.LoadConfigs(*configPath, catalogue)
	if err != nil {
		slog.Error("training config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	client := workerclient.New(cfg.WorkerHost, cfg.InferenceTimeout)
	reg := registry.New(catalogue, client, cfg.ProbeInterval, cfg.ProbeTimeout)

	sup := training.New(ws, configs, reg, client, training.Options{
		StepDelay:       *stepDelay,
		ProbeTimeout:    cfg.ProbeTimeout,
		SkipHealthProbe: *skipProbe,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keys := selectedKeys(*workers, catalogue)
	slog.Info("training run starting",
		slog.String("mode", *mode),
		slog.String("workspace", ws),
		slog.Any("workers", keys))

	switch *mode {
	case "sequential":
		err = sup.RunSequential(ctx, keys)
	case "parallel":
		err = sup.RunParallel(ctx, keys)
	case "phase-parallel":
		phases, perr := config.LoadTrainingPhases(cfg.TrainingPhases)
		if perr != nil {
			slog.Error("training phases load failed", slog.Any("error", perr))
			os.Exit(1)
		}
		if *workers != "" {
			phases = filterPhases(phases, keys)
		}
		err = sup.RunPhases(ctx, phases)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("training run failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func selectedKeys(flagValue string, catalogue []domain.Worker) []string {
	if flagValue == "" {
		out := make([]string, 0, len(catalogue))
		for _, w := range catalogue {
			out = append(out, w.Name)
		}
		return out
	}
	var out []string
	for _, k := range strings.Split(flagValue, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// filterPhases keeps only the requested keys, dropping phases that end
// up empty.
func filterPhases(phases [][]string, keys []string) [][]string {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out [][]string
	for _, phase := range phases {
		var kept []string
		for _, k := range phase {
			if want[k] {
				kept = append(kept, k)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}
