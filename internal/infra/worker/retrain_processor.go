package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/adapter"
	"scanguard/internal/domain/ports/repository"
	"scanguard/internal/domain/ports/usecase"
	"scanguard/internal/infra/logging"
	"scanguard/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Locker is the lease the retraining worker holds for the duration of a run.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

// RetrainProcessor is the single-concurrency worker driving the model
// version state machine: export feedback, call the retraining RPC, then
// promote or roll back. Exclusivity is belt-and-suspenders: concurrency=1
// stops this process from running two jobs, the redis lease and the
// 'training' row check stop a second process instance.
type RetrainProcessor struct {
	queue    repository.JobQueueRepository
	versions repository.ModelVersionRepository
	exporter usecase.FeedbackExporter
	trainer  adapter.TrainingClient
	promoter usecase.ModelManager
	locker   Locker
	notifier adapter.NotificationSink

	threshold int
	lockTTL   time.Duration
	backoff   time.Duration
	log       *zerolog.Logger
}

func NewRetrainProcessor(
	queue repository.JobQueueRepository,
	versions repository.ModelVersionRepository,
	exporter usecase.FeedbackExporter,
	trainer adapter.TrainingClient,
	promoter usecase.ModelManager,
	locker Locker,
	notifier adapter.NotificationSink,
	threshold int,
	lockTTL time.Duration,
	retryBackoff time.Duration,
	log *zerolog.Logger,
) *RetrainProcessor {
	return &RetrainProcessor{
		queue:     queue,
		versions:  versions,
		exporter:  exporter,
		trainer:   trainer,
		promoter:  promoter,
		locker:    locker,
		notifier:  notifier,
		threshold: threshold,
		lockTTL:   lockTTL,
		backoff:   retryBackoff,
		log:       log,
	}
}

func lockKey(modelType string) string { return "retrain:lock:" + modelType }

func (p *RetrainProcessor) ProcessOne(ctx context.Context) bool {
	job, err := p.queue.FetchAndMarkProcessing(ctx, model.JobRetrain)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to fetch retraining job")
		}
		return false
	}

	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, p.log)

	err = p.runGuarded(ctx, job)
	switch {
	case err == nil:
		metrics.IncJob(string(model.JobRetrain), "completed")
		_ = p.queue.Complete(ctx, job.ID)
	case domain.IsTerminal(err):
		// Business skip: already in progress or not enough samples.
		metrics.IncRetrainRun("skipped")
		metrics.IncJob(string(model.JobRetrain), "skipped")
		_ = p.queue.Complete(ctx, job.ID)
		log.Info().Err(err).Msg("retraining skipped")
	default:
		metrics.IncJob(string(model.JobRetrain), "retried")
		_ = p.queue.Fail(ctx, job, err, p.backoff)
		log.Error().Err(err).Msg("retraining job failed")
	}
	return true
}

// runGuarded wraps run with panic recovery: an uncaught fault is logged,
// reported to the admin channel and surfaced to the queue's retry policy.
// Partially-created versions stay in training/rolled_back as an audit trail.
func (p *RetrainProcessor) runGuarded(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retraining panic: %v", r)
			p.log.Error().Str("job_id", job.ID).Interface("panic", r).Msg("retraining run panicked")
			_ = p.notifier.Publish(ctx, adapter.AdminChannel, adapter.EventRetrainingError, map[string]any{
				"job_id": job.ID,
				"error":  fmt.Sprint(r),
			})
		}
	}()
	return p.run(ctx, job)
}

func (p *RetrainProcessor) run(ctx context.Context, job *model.Job) error {
	modelType := job.Retrain.ModelType
	p.progress(ctx, job, 5)

	token, err := p.locker.TryLock(ctx, lockKey(modelType), p.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrRetrainInProgress) {
			return err
		}
		return fmt.Errorf("acquire retrain lock: %w", err)
	}
	defer func() { _ = p.locker.Unlock(context.Background(), lockKey(modelType), token) }()

	// The 'training' row check is the authoritative single-flight guard: the
	// lease alone only covers processes sharing this redis.
	training, err := p.versions.AnyInTraining(ctx, repository.NoTX, modelType)
	if err != nil {
		return fmt.Errorf("single-flight check: %w", err)
	}
	if training {
		return domain.ErrRetrainInProgress
	}
	p.progress(ctx, job, 10)

	// A stale or duplicate trigger may arrive after the pool was drained by
	// an earlier run; re-check before exporting so no rows get stamped.
	available, err := p.exporter.CountUntrained(ctx)
	if err != nil {
		return fmt.Errorf("count untrained: %w", err)
	}
	if available < p.threshold {
		return fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientSamples, available, p.threshold)
	}

	batch, err := p.exporter.ExportBatch(ctx, nil)
	if err != nil {
		return fmt.Errorf("export training batch: %w", err)
	}
	p.progress(ctx, job, 20)

	version := model.NewModelVersion(modelType, batch.BatchID,
		fmt.Sprintf("retrained on %d feedback samples (%s)", len(batch.Samples), job.Retrain.Reason))
	if err := p.versions.Save(ctx, repository.NoTX, version); err != nil {
		return fmt.Errorf("create model version: %w", err)
	}

	_ = p.notifier.Publish(ctx, adapter.AdminChannel, adapter.EventRetrainingStarted, map[string]any{
		"job_id":       job.ID,
		"version_id":   version.ID,
		"version":      version.Version,
		"sample_count": len(batch.Samples),
	})
	p.progress(ctx, job, 30)

	result, err := p.trainer.Retrain(ctx, version.ID, batch.Samples, adapter.DefaultHyperparameters())
	if err != nil {
		version.Status = model.VersionRolledBack
		if saveErr := p.versions.Save(ctx, repository.NoTX, version); saveErr != nil {
			p.log.Error().Err(saveErr).Str("version_id", version.ID).Msg("could not roll back model version")
		}
		metrics.IncRetrainRun("failed")
		_ = p.notifier.Publish(ctx, adapter.AdminChannel, adapter.EventRetrainingFailed, map[string]any{
			"job_id":     job.ID,
			"version_id": version.ID,
			"error":      err.Error(),
		})
		return fmt.Errorf("retrain rpc: %w", err)
	}
	p.progress(ctx, job, 80)

	version.Metrics = result.Metrics
	version.ModelPath = result.ModelPath
	if result.Improved {
		version.Status = model.VersionTesting
	} else {
		version.Status = model.VersionRolledBack
	}
	if err := p.versions.Save(ctx, repository.NoTX, version); err != nil {
		return fmt.Errorf("record retrain result: %w", err)
	}

	// Idempotent re-mark; the export already stamped the rows.
	if err := p.exporter.MarkTrained(ctx, batch.FeedbackIDs, batch.BatchID); err != nil {
		p.log.Warn().Err(err).Str("batch", batch.BatchID).Msg("re-marking trained feedback failed")
	}
	p.progress(ctx, job, 90)

	outcome := "rolled_back"
	if result.Improved {
		if err := p.promoter.Promote(ctx, version.ID); err != nil {
			return fmt.Errorf("promote version: %w", err)
		}
		outcome = "deployed"
	}
	metrics.IncRetrainRun(outcome)

	_ = p.notifier.Publish(ctx, adapter.AdminChannel, adapter.EventRetrainingComplete, map[string]any{
		"job_id":     job.ID,
		"version_id": version.ID,
		"version":    version.Version,
		"improved":   result.Improved,
		"metrics":    result.Metrics,
		"outcome":    outcome,
	})
	p.progress(ctx, job, 100)
	p.log.Info().Str("version_id", version.ID).Str("outcome", outcome).Msg("retraining run finished")
	return nil
}

func (p *RetrainProcessor) progress(ctx context.Context, job *model.Job, percent int) {
	_ = p.notifier.Publish(ctx, adapter.JobChannel(job.ID), adapter.EventRetrainingProgress, map[string]any{
		"job_id":  job.ID,
		"percent": percent,
	})
}
