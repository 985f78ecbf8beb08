package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"
)

var _ repository.PhishingHistoryRepository = (*phishingHistoryRepo)(nil)

type phishingHistoryRepo struct {
	pool *pgxpool.Pool
}

func NewPhishingHistoryRepo(pool *pgxpool.Pool) *phishingHistoryRepo {
	return &phishingHistoryRepo{pool: pool}
}

func (r *phishingHistoryRepo) Save(ctx context.Context, tx repository.Tx, rec *model.PhishingHistory) error {
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO phishing_history (id, owner_id, url, deep, result, from_cache, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7);`
	_, err = execSQL(ctx, r.pool, tx, q,
		rec.ID, rec.OwnerID, rec.URL, rec.Deep, result, rec.FromCache, rec.CreatedAt)
	return err
}

func (r *phishingHistoryRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PhishingHistory, error) {
	const q = `
SELECT id, owner_id, url, deep, result, from_cache, created_at
  FROM phishing_history WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var rec model.PhishingHistory
	var result []byte
	err = row.Scan(&rec.ID, &rec.OwnerID, &rec.URL, &rec.Deep, &result, &rec.FromCache, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(result, &rec.Result); err != nil {
		return nil, err
	}
	return &rec, nil
}
