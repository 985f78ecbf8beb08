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

var _ repository.ModelVersionRepository = (*modelVersionRepo)(nil)

type modelVersionRepo struct {
	pool *pgxpool.Pool
}

func NewModelVersionRepo(pool *pgxpool.Pool) *modelVersionRepo {
	return &modelVersionRepo{pool: pool}
}

const versionCols = `
id, model_type, version, status, metrics, model_path, feedback_batch,
changelog, trained_at, deployed_at`

func (r *modelVersionRepo) Save(ctx context.Context, tx repository.Tx, v *model.ModelVersion) error {
	metrics, err := json.Marshal(v.Metrics)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO model_versions (` + versionCols + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  metrics = EXCLUDED.metrics,
  model_path = EXCLUDED.model_path,
  deployed_at = EXCLUDED.deployed_at;`
	_, err = execSQL(ctx, r.pool, tx, q,
		v.ID, v.ModelType, v.Version, v.Status, metrics, v.ModelPath, v.FeedbackBatch,
		v.Changelog, v.TrainedAt, v.DeployedAt)
	return err
}

func (r *modelVersionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ModelVersion, error) {
	const q = `SELECT ` + versionCols + ` FROM model_versions WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return versionRow(row)
}

func (r *modelVersionRepo) List(ctx context.Context, tx repository.Tx, modelType string) ([]*model.ModelVersion, error) {
	const q = `
SELECT ` + versionCols + `
  FROM model_versions
 WHERE ($1 = '' OR model_type = $1)
 ORDER BY trained_at DESC;`
	rows, err := pickRows(ctx, r.pool, tx, q, modelType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ModelVersion
	for rows.Next() {
		v, err := versionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *modelVersionRepo) AnyInTraining(ctx context.Context, tx repository.Tx, modelType string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM model_versions WHERE model_type=$1 AND status='training');`
	row, err := pickRow(ctx, r.pool, tx, q, modelType)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *modelVersionRepo) FindDeployed(ctx context.Context, tx repository.Tx, modelType string) (*model.ModelVersion, error) {
	const q = `SELECT ` + versionCols + ` FROM model_versions WHERE model_type=$1 AND status='deployed';`
	row, err := pickRow(ctx, r.pool, tx, q, modelType)
	if err != nil {
		return nil, err
	}
	return versionRow(row)
}

func versionRow(row pgx.Row) (*model.ModelVersion, error) {
	var v model.ModelVersion
	var status string
	var metrics []byte
	err := row.Scan(
		&v.ID, &v.ModelType, &v.Version, &status, &metrics, &v.ModelPath, &v.FeedbackBatch,
		&v.Changelog, &v.TrainedAt, &v.DeployedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	v.Status = model.VersionStatus(status)
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &v.Metrics); err != nil {
			return nil, err
		}
	}
	return &v, nil
}
