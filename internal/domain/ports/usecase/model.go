package usecase

import "context"

// ModelManager exposes the promotion step of the version state machine.
type ModelManager interface {
	// Promote deploys the given version and demotes any previously deployed
	// version of the same model type to testing.
	Promote(ctx context.Context, versionID string) error
}
