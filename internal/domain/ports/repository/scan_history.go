package repository

import (
	"context"
	"time"

	"scanguard/internal/domain/model"
)

type ScanHistoryRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.ScanHistory) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ScanHistory, error)
	ListByOwner(ctx context.Context, tx Tx, ownerID string, limit, offset int) ([]*model.ScanHistory, error)

	// CountByOwnerSince backs the feedback engagement signal.
	CountByOwnerSince(ctx context.Context, tx Tx, ownerID string, since time.Time) (int, error)

	// TrendBuckets is the raw time-bucketed aggregate; callers degrade to an
	// empty series when it errors.
	TrendBuckets(ctx context.Context, since time.Time, bucket time.Duration) ([]model.TrendPoint, error)
}

type PhishingHistoryRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.PhishingHistory) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.PhishingHistory, error)
}
