package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrConflict            = errors.New("entity already exists")
	ErrForbidden           = errors.New("operation not permitted")
	ErrValidation          = errors.New("validation failed")
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")
	ErrRateLimited         = errors.New("rate limit exceeded")

	// Business skips: terminal, must not be retried by the queue.
	ErrRetrainInProgress   = errors.New("retraining already in progress")
	ErrInsufficientSamples = errors.New("not enough training samples")

	ErrInvalidExecContext = errors.New("invalid executor context")
)

// IsTerminal reports whether err is a business outcome rather than a
// transient fault. Terminal errors complete the job; everything else is
// handed back to the queue for retry.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrRetrainInProgress) ||
		errors.Is(err, ErrInsufficientSamples)
}
