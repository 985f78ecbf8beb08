package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

type JobKind string

const (
	JobText     JobKind = "text"
	JobVoice    JobKind = "voice"
	JobURL      JobKind = "url"
	JobFeedback JobKind = "feedback"
	JobRetrain  JobKind = "retraining"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type TextPayload struct {
	Content string `json:"content"`
}

type VoicePayload struct {
	AudioB64 string `json:"audio_b64"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
}

type URLPayload struct {
	URL  string `json:"url"`
	Deep bool   `json:"deep"`
	// Context is free text accompanying the URL; when present a secondary
	// phishing analysis runs on it and the confidences are merged.
	Context string `json:"context,omitempty"`
}

type FeedbackPayload struct {
	FeedbackID string `json:"feedback_id"`
}

type RetrainPayload struct {
	ModelType   string `json:"model_type"`
	Reason      string `json:"reason"`
	SampleCount int    `json:"sample_count"`
}

// Job is a durable queue entry. Exactly one payload pointer matching Kind
// is non-nil; dispatch switches exhaustively on Kind.
type Job struct {
	ID          string
	Kind        JobKind
	Status      JobStatus
	OwnerID     string // empty for anonymous scans
	Fingerprint string

	Text     *TextPayload
	Voice    *VoicePayload
	URL      *URLPayload
	Feedback *FeedbackPayload
	Retrain  *RetrainPayload

	Attempts    int
	MaxAttempts int
	LastError   string
	SubmittedAt time.Time
	AvailableAt time.Time
	UpdatedAt   time.Time
}

func newJob(kind JobKind, ownerID string) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Status:      JobStatusPending,
		OwnerID:     ownerID,
		MaxAttempts: 3,
		SubmittedAt: now,
		AvailableAt: now,
		UpdatedAt:   now,
	}
}

func NewTextJob(ownerID, content string) *Job {
	j := newJob(JobText, ownerID)
	j.Text = &TextPayload{Content: content}
	j.Fingerprint = Fingerprint(content)
	return j
}

func NewVoiceJob(ownerID, audioB64, filename, mimeType string) *Job {
	j := newJob(JobVoice, ownerID)
	j.Voice = &VoicePayload{AudioB64: audioB64, Filename: filename, MimeType: mimeType}
	return j
}

func NewURLJob(ownerID, url string, deep bool, context string) *Job {
	j := newJob(JobURL, ownerID)
	j.URL = &URLPayload{URL: url, Deep: deep, Context: context}
	j.Fingerprint = URLFingerprint(url, deep)
	return j
}

func NewFeedbackJob(feedbackID string) *Job {
	j := newJob(JobFeedback, "")
	j.Feedback = &FeedbackPayload{FeedbackID: feedbackID}
	return j
}

func NewRetrainJob(modelType, reason string, sampleCount int) *Job {
	j := newJob(JobRetrain, "")
	j.Retrain = &RetrainPayload{ModelType: modelType, Reason: reason, SampleCount: sampleCount}
	return j
}

// Fingerprint is the deterministic cache key for scan content.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// URLFingerprint keys URL scans on the address plus the deep flag, since a
// deep analysis produces a different result shape than a plain scan.
func URLFingerprint(url string, deep bool) string {
	suffix := ":shallow"
	if deep {
		suffix = ":deep"
	}
	return Fingerprint(url + suffix)
}
