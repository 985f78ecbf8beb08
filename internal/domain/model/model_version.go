package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type VersionStatus string

const (
	VersionTraining   VersionStatus = "training"
	VersionTesting    VersionStatus = "testing"
	VersionDeployed   VersionStatus = "deployed"
	VersionRolledBack VersionStatus = "rolled_back"
)

// ModelVersion tracks one retraining run through the training -> testing ->
// deployed lifecycle. Rows are never deleted; failed runs stay rolled_back
// as an audit trail.
type ModelVersion struct {
	ID            string
	ModelType     string
	Version       string
	Status        VersionStatus
	Metrics       map[string]float64
	ModelPath     string
	FeedbackBatch string
	Changelog     string
	TrainedAt     time.Time
	DeployedAt    *time.Time
}

func NewModelVersion(modelType, feedbackBatch, changelog string) *ModelVersion {
	return &ModelVersion{
		ID:            uuid.NewString(),
		ModelType:     modelType,
		Version:       "v" + NewBatchID(),
		Status:        VersionTraining,
		FeedbackBatch: feedbackBatch,
		Changelog:     changelog,
		TrainedAt:     time.Now(),
	}
}

// NewBatchID returns a lexically sortable identifier for training batches
// and model versions.
func NewBatchID() string {
	return ulid.Make().String()
}
