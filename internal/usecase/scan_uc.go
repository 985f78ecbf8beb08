package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// SubmitLimiter caps per-owner submissions on the synchronous path.
type SubmitLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Compile-time check
var _ ScanUseCase = (*scanUC)(nil)

// ScanUseCase is the produced interface the (excluded) HTTP layer calls to
// submit scans and read history.
type ScanUseCase interface {
	SubmitText(ctx context.Context, ownerID, content string) (jobID string, err error)
	SubmitVoice(ctx context.Context, ownerID, audioB64, filename, mimeType string) (string, error)
	SubmitURL(ctx context.Context, ownerID, url string, deep bool, context string) (string, error)
	History(ctx context.Context, ownerID string, limit, offset int) ([]*model.ScanHistory, error)
	// Trend degrades to an empty series when the aggregate query fails.
	Trend(ctx context.Context, since time.Time, bucket time.Duration) []model.TrendPoint
}

type scanUC struct {
	queue   repository.JobQueueRepository
	history repository.ScanHistoryRepository
	limiter SubmitLimiter
	perMin  int
	log     *zerolog.Logger
}

func NewScanUseCase(queue repository.JobQueueRepository, history repository.ScanHistoryRepository, limiter SubmitLimiter, submitPerMinute int, log *zerolog.Logger) *scanUC {
	return &scanUC{queue: queue, history: history, limiter: limiter, perMin: submitPerMinute, log: log}
}

func (s *scanUC) SubmitText(ctx context.Context, ownerID, content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: empty text payload", domain.ErrValidation)
	}
	if err := s.allow(ctx, ownerID, model.JobText); err != nil {
		return "", err
	}
	return s.enqueue(ctx, model.NewTextJob(ownerID, content))
}

func (s *scanUC) SubmitVoice(ctx context.Context, ownerID, audioB64, filename, mimeType string) (string, error) {
	if audioB64 == "" {
		return "", fmt.Errorf("%w: empty audio payload", domain.ErrValidation)
	}
	if err := s.allow(ctx, ownerID, model.JobVoice); err != nil {
		return "", err
	}
	return s.enqueue(ctx, model.NewVoiceJob(ownerID, audioB64, filename, mimeType))
}

func (s *scanUC) SubmitURL(ctx context.Context, ownerID, url string, deep bool, context string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("%w: empty url", domain.ErrValidation)
	}
	if err := s.allow(ctx, ownerID, model.JobURL); err != nil {
		return "", err
	}
	return s.enqueue(ctx, model.NewURLJob(ownerID, url, deep, context))
}

func (s *scanUC) History(ctx context.Context, ownerID string, limit, offset int) ([]*model.ScanHistory, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner required", domain.ErrValidation)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.history.ListByOwner(ctx, repository.NoTX, ownerID, limit, offset)
}

func (s *scanUC) Trend(ctx context.Context, since time.Time, bucket time.Duration) []model.TrendPoint {
	points, err := s.history.TrendBuckets(ctx, since, bucket)
	if err != nil {
		s.log.Warn().Err(err).Msg("trend query failed, serving empty series")
		return []model.TrendPoint{}
	}
	return points
}

// allow rate-limits authenticated owners; anonymous submissions are shaped
// by the worker-side token buckets only.
func (s *scanUC) allow(ctx context.Context, ownerID string, kind model.JobKind) error {
	if ownerID == "" || s.limiter == nil {
		return nil
	}
	key := fmt.Sprintf("rate_limit:%s:%s", ownerID, kind)
	ok, err := s.limiter.Allow(ctx, key, s.perMin, time.Minute)
	if err != nil {
		s.log.Warn().Err(err).Msg("submit limiter unavailable, allowing")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *scanUC) enqueue(ctx context.Context, job *model.Job) (string, error) {
	if err := s.queue.Enqueue(ctx, repository.NoTX, job); err != nil {
		return "", fmt.Errorf("enqueue %s scan: %w", job.Kind, err)
	}
	s.log.Debug().Str("job_id", job.ID).Str("kind", string(job.Kind)).Msg("scan enqueued")
	return job.ID, nil
}
