package repository

import (
	"context"
	"time"

	"scanguard/internal/domain/model"
)

// JobQueueRepository is the durable, ordered job queue. Delivery is
// at-least-once: a crashed worker leaves the row in 'processing' until the
// stale-job sweep returns it to 'pending'.
type JobQueueRepository interface {
	Enqueue(ctx context.Context, tx Tx, job *model.Job) error

	// FetchAndMarkProcessing atomically claims the oldest available pending
	// job of one of the given kinds and marks it 'processing', so no other
	// worker picks it up.
	FetchAndMarkProcessing(ctx context.Context, kinds ...model.JobKind) (*model.Job, error)

	// Complete marks a job done. Terminal business skips also complete.
	Complete(ctx context.Context, id string) error

	// Fail records the error; while attempts remain the job returns to
	// 'pending' with availability pushed out by backoff, otherwise it is
	// marked 'failed'.
	Fail(ctx context.Context, job *model.Job, cause error, backoff time.Duration) error

	// Depths reports pending counts per kind, for the admin surface.
	Depths(ctx context.Context) (map[model.JobKind]int, error)
}
