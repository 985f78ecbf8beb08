package repository

import (
	"context"

	"scanguard/internal/domain/model"
)

// PredictionCache deduplicates repeated predictions for identical content.
// Get returns domain.ErrNotFound on a miss. Two concurrent misses may both
// compute and store the same key; values are deterministic so the race is
// benign.
type PredictionCache interface {
	Get(ctx context.Context, fingerprint string) (*model.PredictionResult, error)
	Store(ctx context.Context, fingerprint string, kind model.JobKind, res *model.PredictionResult) error
}
