package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"
)

var _ repository.ScanHistoryRepository = (*scanHistoryRepo)(nil)

type scanHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewScanHistoryRepo(pool *pgxpool.Pool) *scanHistoryRepo {
	return &scanHistoryRepo{pool: pool}
}

func (r *scanHistoryRepo) Save(ctx context.Context, tx repository.Tx, rec *model.ScanHistory) error {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO scan_history (id, owner_id, scan_type, content_digest, content, result, from_cache, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err = execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.OwnerID, rec.ScanType, rec.ContentDigest, rec.Content, result, rec.FromCache, rec.CreatedAt)
	return err
}

func (r *scanHistoryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ScanHistory, error) {
	const q = `
SELECT id, owner_id, scan_type, content_digest, content, result, from_cache, created_at
  FROM scan_history WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanHistoryRow(row)
}

func (r *scanHistoryRepo) ListByOwner(ctx context.Context, tx repository.Tx, ownerID string, limit, offset int) ([]*model.ScanHistory, error) {
	const q = `
SELECT id, owner_id, scan_type, content_digest, content, result, from_cache, created_at
  FROM scan_history
 WHERE owner_id=$1
 ORDER BY created_at DESC
 LIMIT $2 OFFSET $3;`
	rows, err := pickRows(ctx, r.pool, tx, q, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ScanHistory
	for rows.Next() {
		rec, err := scanHistoryRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *scanHistoryRepo) CountByOwnerSince(ctx context.Context, tx repository.Tx, ownerID string, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM scan_history WHERE owner_id=$1 AND created_at >= $2;`
	row, err := pickRow(ctx, r.pool, tx, q, ownerID, since)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *scanHistoryRepo) TrendBuckets(ctx context.Context, since time.Time, bucket time.Duration) ([]model.TrendPoint, error) {
	// Raw time-bucketed aggregate; callers degrade to an empty series on error.
	const q = `
SELECT to_timestamp(floor(extract(epoch FROM created_at) / $2) * $2) AS bucket,
       COUNT(*) AS total,
       COUNT(*) FILTER (WHERE result->>'label' IN ('spam','phishing')) AS spam
  FROM scan_history
 WHERE created_at >= $1
 GROUP BY bucket
 ORDER BY bucket;`
	rows, err := r.pool.Query(ctx, q, since, bucket.Seconds())
	if err != nil {
		return nil, fmt.Errorf("trend query: %w", err)
	}
	defer rows.Close()

	var out []model.TrendPoint
	for rows.Next() {
		var p model.TrendPoint
		if err := rows.Scan(&p.Bucket, &p.Total, &p.Spam); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanHistoryRow(row pgx.Row) (*model.ScanHistory, error) {
	var rec model.ScanHistory
	var scanType string
	var result []byte
	err := row.Scan(&rec.ID, &rec.OwnerID, &scanType, &rec.ContentDigest, &rec.Content, &result, &rec.FromCache, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	rec.ScanType = model.JobKind(scanType)
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return nil, err
	}
	return &rec, nil
}
