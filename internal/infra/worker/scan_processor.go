package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/adapter"
	"scanguard/internal/domain/ports/repository"
	"scanguard/internal/infra/logging"
	"scanguard/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// ScanProcessor consumes one scan class (text, voice or url) from the queue:
// cache check, prediction RPC, owner-only persistence, cache write, events.
type ScanProcessor struct {
	kind      model.JobKind
	queue     repository.JobQueueRepository
	cache     repository.PredictionCache
	predictor adapter.PredictionClient
	scans     repository.ScanHistoryRepository
	phishing  repository.PhishingHistoryRepository
	notifier  adapter.NotificationSink
	backoff   time.Duration
	log       *zerolog.Logger
}

func NewScanProcessor(
	kind model.JobKind,
	queue repository.JobQueueRepository,
	cache repository.PredictionCache,
	predictor adapter.PredictionClient,
	scans repository.ScanHistoryRepository,
	phishing repository.PhishingHistoryRepository,
	notifier adapter.NotificationSink,
	retryBackoff time.Duration,
	log *zerolog.Logger,
) *ScanProcessor {
	return &ScanProcessor{
		kind:      kind,
		queue:     queue,
		cache:     cache,
		predictor: predictor,
		scans:     scans,
		phishing:  phishing,
		notifier:  notifier,
		backoff:   retryBackoff,
		log:       log,
	}
}

// ProcessOne claims and runs a single job. Satisfies worker.Task.
func (p *ScanProcessor) ProcessOne(ctx context.Context) bool {
	job, err := p.queue.FetchAndMarkProcessing(ctx, p.kind)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Str("kind", string(p.kind)).Msg("failed to fetch scan job")
		}
		return false
	}

	ctx = logging.WithJobID(ctx, job.ID)
	if job.OwnerID != "" {
		ctx = logging.WithOwnerID(ctx, job.OwnerID)
	}
	log := logging.With(ctx, p.log)

	start := time.Now()
	err = p.handle(ctx, job)
	metrics.ObserveJobDuration(string(p.kind), int(time.Since(start)/time.Millisecond))

	if err != nil {
		p.notifyError(ctx, job, err)
		if domain.IsTerminal(err) {
			metrics.IncJob(string(p.kind), "failed")
			_ = p.queue.Complete(ctx, job.ID)
		} else {
			metrics.IncJob(string(p.kind), "retried")
			_ = p.queue.Fail(ctx, job, err, p.backoff)
		}
		log.Error().Err(err).Msg("scan job failed")
		return true
	}

	metrics.IncJob(string(p.kind), "completed")
	_ = p.queue.Complete(ctx, job.ID)
	log.Info().Str("kind", string(p.kind)).Dur("duration", time.Since(start)).Msg("scan job finished")
	return true
}

func (p *ScanProcessor) handle(ctx context.Context, job *model.Job) error {
	p.notifyProgress(ctx, job, 10)

	// Voice fingerprints are computed here: the submit path does not touch
	// the (potentially large) audio payload.
	if job.Fingerprint == "" && job.Voice != nil {
		job.Fingerprint = model.Fingerprint(job.Voice.AudioB64)
	}

	if cached, err := p.cache.Get(ctx, job.Fingerprint); err == nil {
		metrics.IncCacheRequest(string(job.Kind), "hit")
		res := *cached
		res.FromCache = true
		if err := p.persist(ctx, job, res); err != nil {
			return err
		}
		p.notifyComplete(ctx, job, res)
		return nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("cache lookup: %w", err)
	}
	metrics.IncCacheRequest(string(job.Kind), "miss")

	p.notifyProgress(ctx, job, 30)
	res, err := p.predictFresh(ctx, job)
	if err != nil {
		return err
	}
	p.notifyProgress(ctx, job, 70)

	if err := p.persist(ctx, job, *res); err != nil {
		return fmt.Errorf("persist scan: %w", err)
	}
	if err := p.cache.Store(ctx, job.Fingerprint, job.Kind, res); err != nil {
		return fmt.Errorf("cache store: %w", err)
	}

	p.notifyComplete(ctx, job, *res)
	return nil
}

func (p *ScanProcessor) predictFresh(ctx context.Context, job *model.Job) (*model.PredictionResult, error) {
	switch job.Kind {
	case model.JobText:
		pred, err := p.predictor.PredictText(ctx, job.Text.Content)
		if err != nil {
			return nil, err
		}
		return toResult(pred), nil

	case model.JobVoice:
		audio, err := transcodeAudio(job.Voice)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		pred, err := p.predictor.PredictVoice(ctx, audio, job.Voice.Filename, job.Voice.MimeType)
		if err != nil {
			return nil, err
		}
		return toResult(pred), nil

	case model.JobURL:
		var pred *adapter.Prediction
		var err error
		if job.URL.Deep {
			pred, err = p.predictor.AnalyzeURLDeep(ctx, job.URL.URL)
		} else {
			pred, err = p.predictor.ScanURL(ctx, job.URL.URL)
		}
		if err != nil {
			return nil, err
		}
		res := toResult(pred)
		// Accompanying free text gets a secondary phishing analysis merged
		// in as a combined-confidence average.
		if job.URL.Context != "" {
			secondary, err := p.predictor.PredictPhishing(ctx, job.URL.Context)
			if err != nil {
				return nil, err
			}
			merged := res.Merge(*toResult(secondary))
			res = &merged
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: unexpected job kind %q", domain.ErrValidation, job.Kind)
}

// persist writes a history row for authenticated owners only; anonymous
// scans leave no trail.
func (p *ScanProcessor) persist(ctx context.Context, job *model.Job, res model.PredictionResult) error {
	if job.OwnerID == "" {
		return nil
	}
	if job.Kind == model.JobURL {
		return p.phishing.Save(ctx, repository.NoTX,
			model.NewPhishingHistory(job.OwnerID, job.URL.URL, job.URL.Deep, res))
	}
	content := res.Transcript
	if job.Text != nil {
		content = job.Text.Content
	}
	return p.scans.Save(ctx, repository.NoTX,
		model.NewScanHistory(job.OwnerID, job.Kind, job.Fingerprint, content, res))
}

func (p *ScanProcessor) notifyProgress(ctx context.Context, job *model.Job, percent int) {
	payload := map[string]any{"job_id": job.ID, "percent": percent}
	_ = p.notifier.Publish(ctx, adapter.JobChannel(job.ID), adapter.EventScanProgress, payload)
	if job.OwnerID != "" {
		_ = p.notifier.Publish(ctx, adapter.UserChannel(job.OwnerID), adapter.EventScanProgress, payload)
	}
}

func (p *ScanProcessor) notifyComplete(ctx context.Context, job *model.Job, res model.PredictionResult) {
	p.notifyProgress(ctx, job, 100)
	payload := map[string]any{"job_id": job.ID, "result": res}
	_ = p.notifier.Publish(ctx, adapter.JobChannel(job.ID), adapter.EventScanComplete, payload)
	if job.OwnerID != "" {
		_ = p.notifier.Publish(ctx, adapter.UserChannel(job.OwnerID), adapter.EventScanComplete, payload)
	}
}

func (p *ScanProcessor) notifyError(ctx context.Context, job *model.Job, cause error) {
	payload := map[string]any{"job_id": job.ID, "error": cause.Error()}
	_ = p.notifier.Publish(ctx, adapter.JobChannel(job.ID), adapter.EventScanError, payload)
	if job.OwnerID != "" {
		_ = p.notifier.Publish(ctx, adapter.UserChannel(job.OwnerID), adapter.EventScanError, payload)
	}
}

func toResult(pred *adapter.Prediction) *model.PredictionResult {
	return &model.PredictionResult{
		Label:      pred.Label,
		Confidence: pred.Confidence,
		Indicators: pred.Indicators,
		Transcript: pred.Transcript,
		RawDetails: pred.Raw,
	}
}

// transcodeAudio normalizes the embedded payload to raw bytes for the
// prediction RPC.
func transcodeAudio(v *model.VoicePayload) ([]byte, error) {
	if v.AudioB64 == "" {
		return nil, errors.New("empty audio payload")
	}
	audio, err := base64.StdEncoding.DecodeString(v.AudioB64)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("decoded audio is empty")
	}
	return audio, nil
}
