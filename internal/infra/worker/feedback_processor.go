package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scanguard/internal/config"
	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/adapter"
	"scanguard/internal/domain/ports/repository"
	"scanguard/internal/infra/logging"
	"scanguard/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// FeedbackProcessor turns a just-created pending feedback into a validated,
// scored item or an auto-rejected one. Abuse flags are advisory: they never
// block processing, only mark the row for admin attention.
type FeedbackProcessor struct {
	queue    repository.JobQueueRepository
	feedback repository.FeedbackRepository
	scans    repository.ScanHistoryRepository
	phishing repository.PhishingHistoryRepository
	notifier adapter.NotificationSink
	cfg      config.FeedbackConfig
	backoff  time.Duration
	log      *zerolog.Logger
}

func NewFeedbackProcessor(
	queue repository.JobQueueRepository,
	feedback repository.FeedbackRepository,
	scans repository.ScanHistoryRepository,
	phishing repository.PhishingHistoryRepository,
	notifier adapter.NotificationSink,
	cfg config.FeedbackConfig,
	retryBackoff time.Duration,
	log *zerolog.Logger,
) *FeedbackProcessor {
	return &FeedbackProcessor{
		queue:    queue,
		feedback: feedback,
		scans:    scans,
		phishing: phishing,
		notifier: notifier,
		cfg:      cfg,
		backoff:  retryBackoff,
		log:      log,
	}
}

func (p *FeedbackProcessor) ProcessOne(ctx context.Context) bool {
	job, err := p.queue.FetchAndMarkProcessing(ctx, model.JobFeedback)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to fetch feedback job")
		}
		return false
	}

	ctx = logging.WithJobID(ctx, job.ID)
	if err := p.handle(ctx, job); err != nil {
		if domain.IsTerminal(err) {
			metrics.IncJob(string(model.JobFeedback), "failed")
			_ = p.queue.Complete(ctx, job.ID)
		} else {
			metrics.IncJob(string(model.JobFeedback), "retried")
			_ = p.queue.Fail(ctx, job, err, p.backoff)
		}
		logging.With(ctx, p.log).Error().Err(err).Msg("feedback job failed")
		return true
	}

	metrics.IncJob(string(model.JobFeedback), "completed")
	_ = p.queue.Complete(ctx, job.ID)
	return true
}

func (p *FeedbackProcessor) handle(ctx context.Context, job *model.Job) error {
	fb, err := p.feedback.FindByID(ctx, repository.NoTX, job.Feedback.FeedbackID)
	if err != nil {
		return fmt.Errorf("load feedback: %w", err)
	}

	// Validation failures are a terminal business outcome, not a worker
	// fault: the row is auto-rejected and the job completes.
	reason, err := p.validate(ctx, fb)
	if err != nil {
		return fmt.Errorf("validate feedback: %w", err)
	}
	if reason != "" {
		fb.Reject(reason)
		if err := p.feedback.Update(ctx, repository.NoTX, fb); err != nil {
			return fmt.Errorf("auto-reject feedback: %w", err)
		}
		metrics.IncFeedback("auto_rejected")
		logging.With(ctx, p.log).Info().Str("feedback_id", fb.ID).Str("reason", reason).Msg("feedback auto-rejected")
		return nil
	}

	fb.AbuseFlags = p.abuseFlags(ctx, fb)
	if len(fb.AbuseFlags) > 0 {
		metrics.IncFeedback("flagged")
	}

	score := p.qualityScore(ctx, fb)
	fb.QualityScore = &score
	metrics.ObserveQualityScore(score)

	if err := p.feedback.Update(ctx, repository.NoTX, fb); err != nil {
		return fmt.Errorf("store feedback score: %w", err)
	}

	_ = p.notifier.Publish(ctx, adapter.AdminChannel, adapter.EventFeedbackNew, map[string]any{
		"feedback_id":   fb.ID,
		"type":          fb.Type,
		"owner_id":      fb.OwnerID,
		"quality_score": score,
		"abuse_flags":   fb.AbuseFlags,
	})
	return nil
}

// validate returns a rejection reason, or "" when the feedback is sound. A
// transient store fault is returned as an error so the queue retries instead
// of auto-rejecting over a hiccup.
func (p *FeedbackProcessor) validate(ctx context.Context, fb *model.Feedback) (string, error) {
	if !fb.Type.Valid() {
		return fmt.Sprintf("unknown feedback type %q", fb.Type), nil
	}
	ref, phishing := fb.ScanRef()
	var err error
	if phishing {
		_, err = p.phishing.FindByID(ctx, repository.NoTX, ref)
	} else {
		_, err = p.scans.FindByID(ctx, repository.NoTX, ref)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "referenced scan no longer exists", nil
		}
		return "", fmt.Errorf("load referenced scan: %w", err)
	}
	return "", nil
}

func (p *FeedbackProcessor) abuseFlags(ctx context.Context, fb *model.Feedback) []string {
	var flags []string

	recent, err := p.feedback.CountByOwnerSince(ctx, repository.NoTX, fb.OwnerID, time.Now().Add(-24*time.Hour))
	if err != nil {
		p.log.Warn().Err(err).Msg("volume abuse check failed")
	} else if recent > p.cfg.MaxPerDay {
		flags = append(flags, "high_volume")
	}

	conflicting, err := p.feedback.ConflictingScanCount(ctx, repository.NoTX, fb.OwnerID, time.Now().Add(-p.cfg.ConflictWindow))
	if err != nil {
		p.log.Warn().Err(err).Msg("conflict abuse check failed")
	} else if conflicting > 5 {
		flags = append(flags, "conflicting")
	}

	return flags
}

func (p *FeedbackProcessor) qualityScore(ctx context.Context, fb *model.Feedback) int {
	priorApproved, err := p.feedback.CountApprovedByOwner(ctx, repository.NoTX, fb.OwnerID)
	if err != nil {
		p.log.Warn().Err(err).Msg("prior approved count failed")
	}
	recentScans, err := p.scans.CountByOwnerSince(ctx, repository.NoTX, fb.OwnerID, time.Now().Add(-p.cfg.EngagementWindow))
	if err != nil {
		p.log.Warn().Err(err).Msg("engagement count failed")
	}
	return model.QualityScore(priorApproved, len(fb.Comment), fb.Type, recentScans)
}
