package training

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/s2intelligence/ninefold-gateway/internal/domain"
)

// Dataset size targets scale with the worker's position in the rollout:
// the core trio gets the largest corpora.
var datasetTargets = map[string]int{
	"ake":       30000,
	"rhys":      30000,
	"ketheriel": 30000,
	"wraith":    25000,
	"flux":      25000,
	"kairos":    20000,
	"chalyth":   20000,
	"seraphel":  20000,
	"vireon":    20000,
}

// DefaultConfigs derives a training config per catalogue worker.
func DefaultConfigs(catalogue []domain.Worker) map[string]domain.TrainingConfig {
	out := make(map[string]domain.TrainingConfig, len(catalogue))
	for _, w := range catalogue {
		target, ok := datasetTargets[w.Name]
		if !ok {
			target = 20000
		}
		out[w.Name] = domain.TrainingConfig{
			WorkerKey:         w.Name,
			WorkerName:        w.Name,
			Port:              w.Port,
			Domain:            w.Domain,
			BaseModel:         "gpt2-medium",
			DatasetSizeTarget: target,
			TrainingEpochs:    3,
			BatchSize:         4,
			LearningRate:      5e-5,
			MaxLength:         512,
			ValidationSize:    20,
			AdvantageTarget:   0.25,
		}
	}
	return out
}

type configFile struct {
	Configs []domain.TrainingConfig `yaml:"configs"`
}

// LoadConfigs reads per-worker overrides from a YAML file layered over
// the defaults.
func LoadConfigs(path string, catalogue []domain.Worker) (map[string]domain.TrainingConfig, error) {
	out := DefaultConfigs(catalogue)
	if path == "" {
		return out, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=training.LoadConfigs: %w", err)
	}
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("op=training.LoadConfigs: %w", err)
	}
	for _, cfg := range f.Configs {
		if cfg.WorkerKey == "" {
			return nil, fmt.Errorf("op=training.LoadConfigs: config entry missing worker_key")
		}
		out[cfg.WorkerKey] = cfg
	}
	return out, nil
}
