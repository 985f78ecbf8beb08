package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"
	uc "scanguard/internal/domain/ports/usecase"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

var (
	_ ModelUseCase    = (*modelUC)(nil)
	_ uc.ModelManager = (*modelUC)(nil)
)

// ModelUseCase manages the model version lifecycle: at most one version per
// model type is deployed at a time.
type ModelUseCase interface {
	Promote(ctx context.Context, versionID string) error
	Rollback(ctx context.Context, versionID, reason string) error
	List(ctx context.Context, modelType string) ([]*model.ModelVersion, error)
	Deployed(ctx context.Context, modelType string) (*model.ModelVersion, error)
}

type modelUC struct {
	versions repository.ModelVersionRepository
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewModelUseCase(versions repository.ModelVersionRepository, tm repository.TransactionManager, log *zerolog.Logger) *modelUC {
	return &modelUC{versions: versions, tm: tm, log: log}
}

// Promote moves a testing version to deployed, demoting the previously
// deployed version of the same model type back to testing. Both writes share
// one transaction so the single-deployment invariant holds under crashes.
func (m *modelUC) Promote(ctx context.Context, versionID string) error {
	return m.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		v, err := m.versions.FindByID(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if v.Status != model.VersionTesting {
			return fmt.Errorf("%w: version %s is %s, only testing versions can be promoted", domain.ErrConflict, v.Version, v.Status)
		}

		prior, err := m.versions.FindDeployed(ctx, tx, v.ModelType)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if prior != nil {
			prior.Status = model.VersionTesting
			if err := m.versions.Save(ctx, tx, prior); err != nil {
				return fmt.Errorf("demote prior version: %w", err)
			}
		}

		now := time.Now()
		v.Status = model.VersionDeployed
		v.DeployedAt = &now
		if err := m.versions.Save(ctx, tx, v); err != nil {
			return fmt.Errorf("deploy version: %w", err)
		}
		m.log.Info().Str("model_type", v.ModelType).Str("version", v.Version).Msg("model version deployed")
		return nil
	})
}

// Rollback retires a version. Rolling back the deployed version leaves no
// version deployed; the prior one must be promoted explicitly.
func (m *modelUC) Rollback(ctx context.Context, versionID, reason string) error {
	v, err := m.versions.FindByID(ctx, repository.NoTX, versionID)
	if err != nil {
		return err
	}
	if v.Status == model.VersionRolledBack {
		return fmt.Errorf("%w: version %s already rolled back", domain.ErrConflict, v.Version)
	}
	v.Status = model.VersionRolledBack
	if reason != "" {
		v.Changelog = reason
	}
	if err := m.versions.Save(ctx, repository.NoTX, v); err != nil {
		return err
	}
	m.log.Warn().Str("model_type", v.ModelType).Str("version", v.Version).Str("reason", reason).Msg("model version rolled back")
	return nil
}

func (m *modelUC) List(ctx context.Context, modelType string) ([]*model.ModelVersion, error) {
	return m.versions.List(ctx, repository.NoTX, modelType)
}

func (m *modelUC) Deployed(ctx context.Context, modelType string) (*model.ModelVersion, error) {
	return m.versions.FindDeployed(ctx, repository.NoTX, modelType)
}
