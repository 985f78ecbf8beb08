package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"
)

var _ repository.FeedbackRepository = (*feedbackRepo)(nil)

type feedbackRepo struct {
	pool *pgxpool.Pool
}

func NewFeedbackRepo(pool *pgxpool.Pool) *feedbackRepo {
	return &feedbackRepo{pool: pool}
}

const feedbackCols = `
id, owner_id, scan_history_id, phishing_history_id, original_label, actual_label,
type, comment, status, quality_score, abuse_flags, included_in_training,
training_batch, reviewed_by, review_notes, created_at, reviewed_at`

func (r *feedbackRepo) Insert(ctx context.Context, tx repository.Tx, fb *model.Feedback) error {
	flags, err := json.Marshal(fb.AbuseFlags)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO feedback (` + feedbackCols + `)
VALUES ($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`
	_, err = execSQL(ctx, r.pool, tx, q,
		fb.ID, fb.OwnerID, fb.ScanHistoryID, fb.PhishingHistoryID, fb.OriginalLabel, fb.ActualLabel,
		fb.Type, fb.Comment, fb.Status, fb.QualityScore, flags, fb.IncludedInTraining,
		fb.TrainingBatch, fb.ReviewedBy, fb.ReviewNotes, fb.CreatedAt, fb.ReviewedAt)
	if err != nil {
		// The unique index on (owner, scan ref) is the authoritative
		// duplicate guard; surface it as a domain conflict.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrConflict
		}
		return err
	}
	return nil
}

func (r *feedbackRepo) Update(ctx context.Context, tx repository.Tx, fb *model.Feedback) error {
	flags, err := json.Marshal(fb.AbuseFlags)
	if err != nil {
		return err
	}
	const q = `
UPDATE feedback SET
  status=$2, quality_score=$3, abuse_flags=$4, included_in_training=$5,
  training_batch=$6, reviewed_by=$7, review_notes=$8, reviewed_at=$9
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		fb.ID, fb.Status, fb.QualityScore, flags, fb.IncludedInTraining,
		fb.TrainingBatch, fb.ReviewedBy, fb.ReviewNotes, fb.ReviewedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *feedbackRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Feedback, error) {
	const q = `SELECT ` + feedbackCols + ` FROM feedback WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return feedbackRow(row)
}

func (r *feedbackRepo) ExistsForScan(ctx context.Context, tx repository.Tx, ownerID, scanRef string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM feedback
   WHERE owner_id=$1 AND (scan_history_id=$2 OR phishing_history_id=$2)
);`
	row, err := pickRow(ctx, r.pool, tx, q, ownerID, scanRef)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *feedbackRepo) ListPending(ctx context.Context, tx repository.Tx, limit, offset int) ([]*model.Feedback, error) {
	const q = `
SELECT ` + feedbackCols + `
  FROM feedback
 WHERE status='pending'
 ORDER BY created_at
 LIMIT $1 OFFSET $2;`
	return r.list(ctx, tx, q, limit, offset)
}

func (r *feedbackRepo) CountByOwnerSince(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM feedback WHERE owner_id=$1 AND created_at >= $2;`
	return r.count(ctx, tx, q, ownerID, since)
}

func (r *feedbackRepo) CountApprovedByOwner(ctx context.Context, tx repository.Tx, ownerID string) (int, error) {
	const q = `SELECT COUNT(*) FROM feedback WHERE owner_id=$1 AND status='approved';`
	return r.count(ctx, tx, q, ownerID)
}

func (r *feedbackRepo) ConflictingScanCount(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) (int, error) {
	// Contents on which the owner submitted feedback of more than one
	// distinct type within the window. Grouping is by content digest (url
	// for phishing rows), since the unique index already caps feedback at
	// one per scan row.
	const q = `
SELECT COUNT(*) FROM (
  SELECT COALESCE(sh.content_digest, ph.url) AS ref
    FROM feedback f
    LEFT JOIN scan_history sh ON sh.id = f.scan_history_id
    LEFT JOIN phishing_history ph ON ph.id = f.phishing_history_id
   WHERE f.owner_id=$1 AND f.created_at >= $2
   GROUP BY ref
  HAVING COUNT(DISTINCT f.type) > 1
) conflicted;`
	return r.count(ctx, tx, q, ownerID, since)
}

func (r *feedbackRepo) CountUntrained(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `SELECT COUNT(*) FROM feedback WHERE status='approved' AND NOT included_in_training;`
	return r.count(ctx, tx, q)
}

func (r *feedbackRepo) ListUntrained(ctx context.Context, tx repository.Tx, since *time.Time) ([]*model.Feedback, error) {
	if since != nil {
		const q = `
SELECT ` + feedbackCols + `
  FROM feedback
 WHERE status='approved' AND NOT included_in_training AND created_at >= $1
 ORDER BY created_at;`
		return r.list(ctx, tx, q, *since)
	}
	const q = `
SELECT ` + feedbackCols + `
  FROM feedback
 WHERE status='approved' AND NOT included_in_training
 ORDER BY created_at;`
	return r.list(ctx, tx, q)
}

func (r *feedbackRepo) MarkTrained(ctx context.Context, tx repository.Tx, ids []string, batch string) error {
	const q = `
UPDATE feedback SET included_in_training=TRUE, training_batch=$2
 WHERE id = ANY($1);`
	_, err := execSQL(ctx, r.pool, tx, q, ids, batch)
	return err
}

func (r *feedbackRepo) Stats(ctx context.Context, tx repository.Tx) (*model.FeedbackStats, error) {
	stats := &model.FeedbackStats{
		ByStatus: make(map[model.FeedbackStatus]int),
		ByType:   make(map[model.FeedbackType]int),
	}

	rows, err := pickRows(ctx, r.pool, tx, `SELECT status, COUNT(*) FROM feedback GROUP BY status;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[model.FeedbackStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = pickRows(ctx, r.pool, tx, `SELECT type, COUNT(*) FROM feedback GROUP BY type;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		stats.ByType[model.FeedbackType(typ)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	const rates = `
SELECT COUNT(*) FILTER (WHERE type='false_positive')::float / GREATEST(COUNT(*), 1),
       COUNT(*) FILTER (WHERE type='false_negative')::float / GREATEST(COUNT(*), 1)
  FROM feedback WHERE status='approved';`
	row, err := pickRow(ctx, r.pool, tx, rates)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&stats.FalsePositiveRate, &stats.FalseNegativeRate); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *feedbackRepo) count(ctx context.Context, tx repository.Tx, q string, args ...interface{}) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *feedbackRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Feedback, error) {
	rows, err := pickRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Feedback
	for rows.Next() {
		fb, err := feedbackRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

func feedbackRow(row pgx.Row) (*model.Feedback, error) {
	var fb model.Feedback
	var scanID, phishingID *string
	var typ, status string
	var flags []byte
	err := row.Scan(
		&fb.ID, &fb.OwnerID, &scanID, &phishingID, &fb.OriginalLabel, &fb.ActualLabel,
		&typ, &fb.Comment, &status, &fb.QualityScore, &flags, &fb.IncludedInTraining,
		&fb.TrainingBatch, &fb.ReviewedBy, &fb.ReviewNotes, &fb.CreatedAt, &fb.ReviewedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if scanID != nil {
		fb.ScanHistoryID = *scanID
	}
	if phishingID != nil {
		fb.PhishingHistoryID = *phishingID
	}
	fb.Type = model.FeedbackType(typ)
	fb.Status = model.FeedbackStatus(status)
	if len(flags) > 0 {
		if err := json.Unmarshal(flags, &fb.AbuseFlags); err != nil {
			return nil, err
		}
	}
	return &fb, nil
}
