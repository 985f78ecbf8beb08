package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"
)

var _ repository.JobQueueRepository = (*scanJobRepo)(nil)

type scanJobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewScanJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *scanJobRepo {
	return &scanJobRepo{pool: pool, tm: tm}
}

// jobPayload is the JSONB envelope for the kind-specific variant.
type jobPayload struct {
	Text     *model.TextPayload     `json:"text,omitempty"`
	Voice    *model.VoicePayload    `json:"voice,omitempty"`
	URL      *model.URLPayload      `json:"url,omitempty"`
	Feedback *model.FeedbackPayload `json:"feedback,omitempty"`
	Retrain  *model.RetrainPayload  `json:"retrain,omitempty"`
}

func (r *scanJobRepo) Enqueue(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.UpdatedAt = time.Now()

	payload, err := json.Marshal(jobPayload{
		Text: job.Text, Voice: job.Voice, URL: job.URL,
		Feedback: job.Feedback, Retrain: job.Retrain,
	})
	if err != nil {
		return err
	}

	const q = `
INSERT INTO scan_jobs (id, kind, status, owner_id, fingerprint, payload,
                       attempts, max_attempts, last_error, submitted_at, available_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  attempts = EXCLUDED.attempts,
  last_error = EXCLUDED.last_error,
  available_at = EXCLUDED.available_at,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.Kind, job.Status, job.OwnerID, job.Fingerprint, payload,
		job.Attempts, job.MaxAttempts, job.LastError, job.SubmittedAt, job.AvailableAt, job.UpdatedAt)
	return err
}

func (r *scanJobRepo) FetchAndMarkProcessing(ctx context.Context, kinds ...model.JobKind) (*model.Job, error) {
	var job *model.Job

	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetchQuery = `
SELECT id, kind, status, owner_id, fingerprint, payload,
       attempts, max_attempts, last_error, submitted_at, available_at, updated_at
FROM scan_jobs
WHERE kind = ANY($1) AND status = 'pending' AND available_at <= now()
ORDER BY submitted_at
LIMIT 1
FOR UPDATE SKIP LOCKED;`

		row, err := pickRow(ctx, r.pool, tx, fetchQuery, names)
		if err != nil {
			return err
		}

		fetched, err := scanJobRow(row)
		if err != nil {
			return err
		}

		// Mark processing so no other worker claims it.
		fetched.Status = model.JobStatusProcessing
		fetched.UpdatedAt = time.Now()
		const mark = `UPDATE scan_jobs SET status=$2, updated_at=$3 WHERE id=$1;`
		if _, err := execSQL(ctx, r.pool, tx, mark, fetched.ID, fetched.Status, fetched.UpdatedAt); err != nil {
			return err
		}

		job = fetched
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (r *scanJobRepo) Complete(ctx context.Context, id string) error {
	const q = `UPDATE scan_jobs SET status='completed', updated_at=now() WHERE id=$1;`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

func (r *scanJobRepo) Fail(ctx context.Context, job *model.Job, cause error, backoff time.Duration) error {
	job.Attempts++
	job.LastError = cause.Error()
	if job.Attempts < job.MaxAttempts {
		job.Status = model.JobStatusPending
		job.AvailableAt = time.Now().Add(backoff * time.Duration(job.Attempts))
	} else {
		job.Status = model.JobStatusFailed
	}

	const q = `
UPDATE scan_jobs
SET status=$2, attempts=$3, last_error=$4, available_at=$5, updated_at=now()
WHERE id=$1;`
	_, err := r.pool.Exec(ctx, q, job.ID, job.Status, job.Attempts, job.LastError, job.AvailableAt)
	return err
}

func (r *scanJobRepo) Depths(ctx context.Context) (map[model.JobKind]int, error) {
	const q = `SELECT kind, COUNT(*) FROM scan_jobs WHERE status='pending' GROUP BY kind;`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	depths := make(map[model.JobKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		depths[model.JobKind(kind)] = n
	}
	return depths, rows.Err()
}

func scanJobRow(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var kind, status string
	var payload []byte
	err := row.Scan(
		&j.ID, &kind, &status, &j.OwnerID, &j.Fingerprint, &payload,
		&j.Attempts, &j.MaxAttempts, &j.LastError, &j.SubmittedAt, &j.AvailableAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)

	var p jobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	j.Text, j.Voice, j.URL, j.Feedback, j.Retrain = p.Text, p.Voice, p.URL, p.Feedback, p.Retrain
	return &j, nil
}
