package adapter

import (
	"context"

	"scanguard/internal/domain/model"
)

// Prediction is the raw verdict from the ML service, before cache tagging.
type Prediction struct {
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	Indicators []string       `json:"indicators,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	Raw        map[string]any `json:"raw,omitempty"`
}

// PredictionClient is the port for the external classifier. All calls are
// synchronous with bounded timeouts; unreachable or erroring upstreams map
// to domain.ErrUpstreamUnavailable.
type PredictionClient interface {
	PredictText(ctx context.Context, text string) (*Prediction, error)
	PredictVoice(ctx context.Context, audio []byte, filename, mimeType string) (*Prediction, error)
	ScanURL(ctx context.Context, url string) (*Prediction, error)
	AnalyzeURLDeep(ctx context.Context, url string) (*Prediction, error)
	PredictPhishing(ctx context.Context, text string) (*Prediction, error)
}

type Hyperparameters struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	BatchSize    int     `json:"batch_size"`
}

// DefaultHyperparameters are fixed for every retraining run.
func DefaultHyperparameters() Hyperparameters {
	return Hyperparameters{Epochs: 5, LearningRate: 0.001, BatchSize: 32}
}

type RetrainResult struct {
	Improved  bool               `json:"improved"`
	Metrics   map[string]float64 `json:"metrics"`
	ModelPath string             `json:"model_path"`
}

// TrainingClient is the port for the long-running retraining RPC.
type TrainingClient interface {
	Retrain(ctx context.Context, versionID string, samples []model.TrainingSample, hp Hyperparameters) (*RetrainResult, error)
}
