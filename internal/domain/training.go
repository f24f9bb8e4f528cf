package domain

import "time"

// TrainingStage is the closed set of supervisor states. Transitions are
// one-way: forward through the pipeline, or from any stage to
// StageFailed.
type TrainingStage string

// Pipeline stages in execution order.
const (
	StageIdle              TrainingStage = "idle"
	StageDatasetCollection TrainingStage = "dataset_collection"
	StageDatasetProcessing TrainingStage = "dataset_processing"
	StageModelTraining     TrainingStage = "model_training"
	StageValidation        TrainingStage = "validation"
	StageDeployment        TrainingStage = "deployment"
	StageComplete          TrainingStage = "complete"
	StageFailed            TrainingStage = "failed"
)

var stageOrder = map[TrainingStage]int{
	StageIdle:              0,
	StageDatasetCollection: 1,
	StageDatasetProcessing: 2,
	StageModelTraining:     3,
	StageValidation:        4,
	StageDeployment:        5,
	StageComplete:          6,
}

// CanTransition reports whether moving from one stage to another is
// legal: forward only, with StageFailed reachable from anywhere.
func (s TrainingStage) CanTransition(to TrainingStage) bool {
	if to == StageFailed {
		return s != StageComplete
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	next, ok := stageOrder[to]
	if !ok {
		return false
	}
	return next > from
}

// TrainingConfig parameterises one worker's pipeline run.
type TrainingConfig struct {
	WorkerKey         string  `yaml:"worker_key" json:"worker_key"`
	WorkerName        string  `yaml:"worker_name" json:"worker_name"`
	Port              int     `yaml:"port" json:"port"`
	Domain            Domain  `yaml:"domain" json:"domain"`
	BaseModel         string  `yaml:"base_model" json:"base_model"`
	DatasetSizeTarget int     `yaml:"dataset_size_target" json:"dataset_size_target"`
	TrainingEpochs    int     `yaml:"training_epochs" json:"training_epochs"`
	BatchSize         int     `yaml:"batch_size" json:"batch_size"`
	LearningRate      float64 `yaml:"learning_rate" json:"learning_rate"`
	MaxLength         int     `yaml:"max_length" json:"max_length"`
	ValidationSize    int     `yaml:"validation_size" json:"validation_size"`
	AdvantageTarget   float64 `yaml:"advantage_target" json:"advantage_target"`
}

// ValidationReport captures the specialist-vs-generalist comparison.
// Missing the target is a warning, not a failure; the job proceeds to
// deployment with MeetsTarget false.
type ValidationReport struct {
	GeneralistScore float64 `json:"generalist_score"`
	SpecialistScore float64 `json:"specialist_score"`
	Advantage       float64 `json:"advantage"`
	MeetsTarget     bool    `json:"meets_target"`
	ValidationSize  int     `json:"validation_size"`
}

// TrainingJob is a per-worker supervision record. ProgressPct is
// monotonic non-decreasing until the job fails.
type TrainingJob struct {
	ID                  string            `json:"id"`
	Key                 string            `json:"key"`
	Config              TrainingConfig    `json:"config"`
	Stage               TrainingStage     `json:"stage"`
	ProgressPct         float64           `json:"progress_pct"`
	CurrentStep         string            `json:"current_step"`
	DatasetCollected    int               `json:"dataset_collected"`
	TrainingLoss        *float64          `json:"training_loss,omitempty"`
	ValidationScore     *float64          `json:"validation_score,omitempty"`
	SpecialistAdvantage *float64          `json:"specialist_advantage,omitempty"`
	Validation          *ValidationReport `json:"validation,omitempty"`
	Errors              []string          `json:"errors"`
	StartedAt           time.Time         `json:"started_at"`
	EstimatedCompletion *time.Time        `json:"estimated_completion,omitempty"`
}
