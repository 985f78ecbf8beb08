package usecase

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"scanguard/internal/domain"
	"scanguard/internal/domain/model"
	"scanguard/internal/domain/ports/repository"
	uc "scanguard/internal/domain/ports/usecase"
	"scanguard/internal/infra/logging"
	"scanguard/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var (
	_ FeedbackService     = (*feedbackUC)(nil)
	_ uc.FeedbackExporter = (*feedbackUC)(nil)
)

// PendingFeedback is a queue item enriched with a short summary of the scan
// it refers to, so reviewers see context without a second lookup.
type PendingFeedback struct {
	Feedback    *model.Feedback `json:"feedback"`
	ScanSummary string          `json:"scan_summary"`
}

// ExportResult is the admin-facing export envelope: the rendered samples
// plus the batch stamped onto the exported rows.
type ExportResult struct {
	BatchID     string
	Count       int
	ContentType string
	Body        []byte
}

// FeedbackService is the review/export surface consumed by the admin API.
type FeedbackService interface {
	Submit(ctx context.Context, ownerID, scanHistoryID, phishingHistoryID, actualLabel string, fbType model.FeedbackType, comment string) (*model.Feedback, error)
	ListPending(ctx context.Context, limit, offset int) ([]PendingFeedback, error)
	Review(ctx context.Context, feedbackID, reviewerID string, approve bool, notes string) (*model.Feedback, error)
	Stats(ctx context.Context) (*model.FeedbackStats, error)
	// Export materializes approved untrained feedback, stamps it with a
	// fresh batch id so the same rows never enter two batches, and renders
	// it as "json" or "csv".
	Export(ctx context.Context, format string, since *time.Time) (*ExportResult, error)
}

type feedbackUC struct {
	feedback  repository.FeedbackRepository
	scans     repository.ScanHistoryRepository
	phishing  repository.PhishingHistoryRepository
	queue     repository.JobQueueRepository
	modelType string
	threshold int
	log       *zerolog.Logger
}

func NewFeedbackUseCase(
	feedback repository.FeedbackRepository,
	scans repository.ScanHistoryRepository,
	phishing repository.PhishingHistoryRepository,
	queue repository.JobQueueRepository,
	modelType string,
	retrainThreshold int,
	log *zerolog.Logger,
) *feedbackUC {
	return &feedbackUC{
		feedback:  feedback,
		scans:     scans,
		phishing:  phishing,
		queue:     queue,
		modelType: modelType,
		threshold: retrainThreshold,
		log:       log,
	}
}

// Submit validates and persists a feedback row, then enqueues the async
// quality/abuse scoring job. Duplicate submissions surface as ErrConflict.
func (f *feedbackUC) Submit(ctx context.Context, ownerID, scanHistoryID, phishingHistoryID, actualLabel string, fbType model.FeedbackType, comment string) (*model.Feedback, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner required", domain.ErrValidation)
	}
	if !fbType.Valid() {
		return nil, fmt.Errorf("%w: unknown feedback type %q", domain.ErrValidation, fbType)
	}
	if (scanHistoryID == "") == (phishingHistoryID == "") {
		return nil, fmt.Errorf("%w: exactly one scan reference required", domain.ErrValidation)
	}
	if fbType != model.FeedbackConfirmed && actualLabel == "" {
		return nil, fmt.Errorf("%w: corrections require the actual label", domain.ErrValidation)
	}

	originalLabel, err := f.resolveOriginal(ctx, ownerID, scanHistoryID, phishingHistoryID)
	if err != nil {
		return nil, err
	}
	if fbType == model.FeedbackConfirmed && actualLabel == "" {
		actualLabel = originalLabel
	}

	// Early duplicate check for a friendly error; the unique index remains
	// authoritative under concurrent submits.
	ref := scanHistoryID
	if ref == "" {
		ref = phishingHistoryID
	}
	if exists, err := f.feedback.ExistsForScan(ctx, repository.NoTX, ownerID, ref); err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	} else if exists {
		return nil, fmt.Errorf("%w: feedback already submitted for this scan", domain.ErrConflict)
	}

	fb := model.NewFeedback(ownerID, scanHistoryID, phishingHistoryID, originalLabel, actualLabel, fbType, comment)
	if err := f.feedback.Insert(ctx, repository.NoTX, fb); err != nil {
		return nil, err
	}
	if err := f.queue.Enqueue(ctx, repository.NoTX, model.NewFeedbackJob(fb.ID)); err != nil {
		// The row exists; scoring will be picked up on resubmission review.
		f.log.Error().Err(err).Str("feedback_id", fb.ID).Msg("failed to enqueue feedback scoring job")
	}
	metrics.IncFeedback("submitted")
	return fb, nil
}

// resolveOriginal loads the referenced scan, enforces ownership, and returns
// the label the model originally produced.
func (f *feedbackUC) resolveOriginal(ctx context.Context, ownerID, scanHistoryID, phishingHistoryID string) (string, error) {
	if phishingHistoryID != "" {
		rec, err := f.phishing.FindByID(ctx, repository.NoTX, phishingHistoryID)
		if err != nil {
			return "", err
		}
		if rec.OwnerID != ownerID {
			return "", domain.ErrForbidden
		}
		return rec.Result.Label, nil
	}
	rec, err := f.scans.FindByID(ctx, repository.NoTX, scanHistoryID)
	if err != nil {
		return "", err
	}
	if rec.OwnerID != ownerID {
		return "", domain.ErrForbidden
	}
	return rec.Result.Label, nil
}

func (f *feedbackUC) ListPending(ctx context.Context, limit, offset int) ([]PendingFeedback, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := f.feedback.ListPending(ctx, repository.NoTX, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]PendingFeedback, 0, len(rows))
	for _, fb := range rows {
		out = append(out, PendingFeedback{Feedback: fb, ScanSummary: f.summarize(ctx, fb)})
	}
	return out, nil
}

func (f *feedbackUC) summarize(ctx context.Context, fb *model.Feedback) string {
	ref, isPhishing := fb.ScanRef()
	if isPhishing {
		rec, err := f.phishing.FindByID(ctx, repository.NoTX, ref)
		if err != nil {
			return ""
		}
		return fmt.Sprintf("url %s -> %s (%.2f)", rec.URL, rec.Result.Label, rec.Result.Confidence)
	}
	rec, err := f.scans.FindByID(ctx, repository.NoTX, ref)
	if err != nil {
		return ""
	}
	excerpt := rec.Content
	if len(excerpt) > 80 {
		excerpt = excerpt[:80] + "..."
	}
	return fmt.Sprintf("%s %q -> %s (%.2f)", rec.ScanType, excerpt, rec.Result.Label, rec.Result.Confidence)
}

// Review resolves a pending item. Approving may push the untrained pool over
// the retraining threshold, in which case a retraining job is enqueued;
// concurrent duplicate triggers are absorbed by the retraining lock.
func (f *feedbackUC) Review(ctx context.Context, feedbackID, reviewerID string, approve bool, notes string) (*model.Feedback, error) {
	defer logging.TraceDuration(f.log, "FeedbackUC.Review")()

	if reviewerID == "" {
		return nil, fmt.Errorf("%w: reviewer required", domain.ErrValidation)
	}
	fb, err := f.feedback.FindByID(ctx, repository.NoTX, feedbackID)
	if err != nil {
		return nil, err
	}
	if fb.Status != model.FeedbackPending {
		return nil, fmt.Errorf("%w: feedback already %s", domain.ErrConflict, fb.Status)
	}

	now := time.Now()
	fb.ReviewedBy = reviewerID
	fb.ReviewNotes = notes
	fb.ReviewedAt = &now
	if approve {
		fb.Status = model.FeedbackApproved
	} else {
		fb.Status = model.FeedbackRejected
	}
	if err := f.feedback.Update(ctx, repository.NoTX, fb); err != nil {
		return nil, err
	}

	if approve {
		metrics.IncFeedback("approved")
		f.maybeTriggerRetrain(ctx)
	} else {
		metrics.IncFeedback("rejected")
	}
	return fb, nil
}

func (f *feedbackUC) maybeTriggerRetrain(ctx context.Context) {
	count, err := f.feedback.CountUntrained(ctx, repository.NoTX)
	if err != nil {
		f.log.Error().Err(err).Msg("untrained count failed, skipping retrain trigger")
		return
	}
	if count < f.threshold {
		return
	}
	job := model.NewRetrainJob(f.modelType, "feedback_threshold", count)
	if err := f.queue.Enqueue(ctx, repository.NoTX, job); err != nil {
		f.log.Error().Err(err).Msg("failed to enqueue retraining job")
		return
	}
	f.log.Info().Int("untrained", count).Str("job_id", job.ID).Msg("retraining triggered")
}

func (f *feedbackUC) Stats(ctx context.Context) (*model.FeedbackStats, error) {
	return f.feedback.Stats(ctx, repository.NoTX)
}

func (f *feedbackUC) Export(ctx context.Context, format string, since *time.Time) (*ExportResult, error) {
	defer logging.TraceDuration(f.log, "FeedbackUC.Export")()

	format = strings.ToLower(format)
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "csv" {
		// Reject before stamping: a bad format must not consume the rows.
		return nil, fmt.Errorf("%w: unsupported export format %q", domain.ErrValidation, format)
	}

	batch, err := f.ExportBatch(ctx, since)
	if err != nil {
		return nil, err
	}
	res := &ExportResult{BatchID: batch.BatchID, Count: len(batch.Samples)}
	if format == "csv" {
		res.ContentType = "text/csv"
		res.Body, err = renderCSV(batch.Samples)
	} else {
		res.ContentType = "application/json"
		res.Body, err = marshalSamples(batch.Samples)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// --- FeedbackExporter (consumed by the retraining worker) ---

func (f *feedbackUC) CountUntrained(ctx context.Context) (int, error) {
	return f.feedback.CountUntrained(ctx, repository.NoTX)
}

// ExportBatch materializes approved untrained feedback into training samples
// and stamps the batch id. Rows whose referenced scan is gone are skipped.
func (f *feedbackUC) ExportBatch(ctx context.Context, since *time.Time) (*model.TrainingBatch, error) {
	batch, err := f.materialize(ctx, since)
	if err != nil {
		return nil, err
	}
	if len(batch.Samples) == 0 {
		return nil, fmt.Errorf("%w: no exportable samples", domain.ErrInsufficientSamples)
	}
	if err := f.feedback.MarkTrained(ctx, repository.NoTX, batch.FeedbackIDs, batch.BatchID); err != nil {
		return nil, fmt.Errorf("mark trained: %w", err)
	}
	return batch, nil
}

func (f *feedbackUC) MarkTrained(ctx context.Context, ids []string, batch string) error {
	return f.feedback.MarkTrained(ctx, repository.NoTX, ids, batch)
}

func (f *feedbackUC) materialize(ctx context.Context, since *time.Time) (*model.TrainingBatch, error) {
	rows, err := f.feedback.ListUntrained(ctx, repository.NoTX, since)
	if err != nil {
		return nil, fmt.Errorf("list untrained: %w", err)
	}
	batch := &model.TrainingBatch{BatchID: model.NewBatchID()}
	for _, fb := range rows {
		sample, err := f.toSample(ctx, fb)
		if err != nil {
			f.log.Warn().Err(err).Str("feedback_id", fb.ID).Msg("skipping unexportable feedback")
			continue
		}
		batch.Samples = append(batch.Samples, *sample)
		batch.FeedbackIDs = append(batch.FeedbackIDs, fb.ID)
	}
	return batch, nil
}

func (f *feedbackUC) toSample(ctx context.Context, fb *model.Feedback) (*model.TrainingSample, error) {
	ref, isPhishing := fb.ScanRef()
	var text string
	scanType := model.JobText
	if isPhishing {
		rec, err := f.phishing.FindByID(ctx, repository.NoTX, ref)
		if err != nil {
			return nil, err
		}
		text = rec.URL
		scanType = model.JobURL
	} else {
		rec, err := f.scans.FindByID(ctx, repository.NoTX, ref)
		if err != nil {
			return nil, err
		}
		text = rec.Content
		scanType = rec.ScanType
	}
	if text == "" {
		return nil, fmt.Errorf("referenced scan has no content")
	}
	corrected := fb.ActualLabel
	if corrected == "" {
		corrected = fb.OriginalLabel
	}
	return &model.TrainingSample{
		Text:           text,
		OriginalLabel:  fb.OriginalLabel,
		CorrectedLabel: corrected,
		FeedbackType:   fb.Type,
		ScanType:       scanType,
	}, nil
}

func marshalSamples(samples []model.TrainingSample) ([]byte, error) {
	if samples == nil {
		samples = []model.TrainingSample{}
	}
	return json.MarshalIndent(samples, "", "  ")
}

func renderCSV(samples []model.TrainingSample) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write([]string{"text", "original_label", "corrected_label", "feedback_type", "scan_type", "class"}); err != nil {
		return nil, err
	}
	for _, s := range samples {
		rec := []string{
			s.Text, s.OriginalLabel, s.CorrectedLabel,
			string(s.FeedbackType), string(s.ScanType),
			strconv.Itoa(model.LabelPolarity(s.CorrectedLabel)),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
