package repository

import (
	"context"

	"scanguard/internal/domain/model"
)

type ModelVersionRepository interface {
	Save(ctx context.Context, tx Tx, v *model.ModelVersion) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ModelVersion, error)
	List(ctx context.Context, tx Tx, modelType string) ([]*model.ModelVersion, error)

	// AnyInTraining is the single-flight check: true while any version of
	// the given model type sits in 'training'.
	AnyInTraining(ctx context.Context, tx Tx, modelType string) (bool, error)

	FindDeployed(ctx context.Context, tx Tx, modelType string) (*model.ModelVersion, error)
}
