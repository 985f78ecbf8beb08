package usecase

import (
	"context"
	"time"

	"scanguard/internal/domain/model"
)

// FeedbackExporter is the slice of the feedback service the retraining
// worker consumes: it materializes approved, not-yet-trained feedback into
// a training batch and stamps the rows as exported.
type FeedbackExporter interface {
	CountUntrained(ctx context.Context) (int, error)
	ExportBatch(ctx context.Context, since *time.Time) (*model.TrainingBatch, error)
	MarkTrained(ctx context.Context, ids []string, batch string) error
}
