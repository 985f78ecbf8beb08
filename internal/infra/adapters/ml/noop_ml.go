package ml

import (
	"context"

	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/adapter"
)

var (
	_ adapter.PredictionClient = (*NoopClient)(nil)
	_ adapter.TrainingClient   = (*NoopClient)(nil)
)

// NoopClient returns fixed verdicts. Useful for dev mode and wiring tests.
type NoopClient struct{}

func (NoopClient) fixed() (*adapter.Prediction, error) {
	return &adapter.Prediction{Label: "ham", Confidence: 0.5}, nil
}

func (n NoopClient) PredictText(ctx context.Context, text string) (*adapter.Prediction, error) {
	return n.fixed()
}

func (n NoopClient) PredictVoice(ctx context.Context, audio []byte, filename, mimeType string) (*adapter.Prediction, error) {
	return n.fixed()
}

func (n NoopClient) ScanURL(ctx context.Context, url string) (*adapter.Prediction, error) {
	return n.fixed()
}

func (n NoopClient) AnalyzeURLDeep(ctx context.Context, url string) (*adapter.Prediction, error) {
	return n.fixed()
}

func (n NoopClient) PredictPhishing(ctx context.Context, text string) (*adapter.Prediction, error) {
	return n.fixed()
}

func (NoopClient) Retrain(ctx context.Context, versionID string, samples []model.TrainingSample, hp adapter.Hyperparameters) (*adapter.RetrainResult, error) {
	return &adapter.RetrainResult{Improved: false, Metrics: map[string]float64{}}, nil
}
