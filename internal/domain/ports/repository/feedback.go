package repository

import (
	"context"
	"time"

	"scanguard/internal/domain/model"
)

type FeedbackRepository interface {
	// Insert persists a new feedback row. The unique index on
	// (owner, scan ref) is authoritative for duplicates; violations map to
	// domain.ErrConflict.
	Insert(ctx context.Context, tx Tx, fb *model.Feedback) error
	Update(ctx context.Context, tx Tx, fb *model.Feedback) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Feedback, error)

	ExistsForScan(ctx context.Context, tx Tx, ownerID, scanRef string) (bool, error)
	ListPending(ctx context.Context, tx Tx, limit, offset int) ([]*model.Feedback, error)

	// Abuse-heuristic and quality-score inputs.
	CountByOwnerSince(ctx context.Context, tx Tx, ownerID string, since time.Time) (int, error)
	CountApprovedByOwner(ctx context.Context, tx Tx, ownerID string) (int, error)
	// ConflictingScanCount counts contents (by digest, url for phishing
	// scans) on which the owner submitted more than one distinct feedback
	// type over the window.
	ConflictingScanCount(ctx context.Context, tx Tx, ownerID string, since time.Time) (int, error)

	// Training export surface.
	CountUntrained(ctx context.Context, tx Tx) (int, error)
	ListUntrained(ctx context.Context, tx Tx, since *time.Time) ([]*model.Feedback, error)
	MarkTrained(ctx context.Context, tx Tx, ids []string, batch string) error

	Stats(ctx context.Context, tx Tx) (*model.FeedbackStats, error)
}
