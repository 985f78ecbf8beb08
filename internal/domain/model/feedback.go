package model

import (
	"time"

	"github.com/google/uuid"
)

type FeedbackType string

const (
	FeedbackFalsePositive FeedbackType = "false_positive"
	FeedbackFalseNegative FeedbackType = "false_negative"
	FeedbackConfirmed     FeedbackType = "confirmed"
)

func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackFalsePositive, FeedbackFalseNegative, FeedbackConfirmed:
		return true
	}
	return false
}

type FeedbackStatus string

const (
	FeedbackPending  FeedbackStatus = "pending"
	FeedbackApproved FeedbackStatus = "approved"
	FeedbackRejected FeedbackStatus = "rejected"
)

// Feedback is a user's correction (or confirmation) of a prediction.
// Exactly one of ScanHistoryID / PhishingHistoryID is set.
type Feedback struct {
	ID                 string
	OwnerID            string
	ScanHistoryID      string
	PhishingHistoryID  string
	OriginalLabel      string
	ActualLabel        string
	Type               FeedbackType
	Comment            string
	Status             FeedbackStatus
	QualityScore       *int
	AbuseFlags         []string
	IncludedInTraining bool
	TrainingBatch      string
	ReviewedBy         string
	ReviewNotes        string
	CreatedAt          time.Time
	ReviewedAt         *time.Time
}

func NewFeedback(ownerID, scanHistoryID, phishingHistoryID, originalLabel, actualLabel string, fbType FeedbackType, comment string) *Feedback {
	return &Feedback{
		ID:                uuid.NewString(),
		OwnerID:           ownerID,
		ScanHistoryID:     scanHistoryID,
		PhishingHistoryID: phishingHistoryID,
		OriginalLabel:     originalLabel,
		ActualLabel:       actualLabel,
		Type:              fbType,
		Comment:           comment,
		Status:            FeedbackPending,
		CreatedAt:         time.Now(),
	}
}

// ScanRef returns the referenced history id and whether it points at the
// phishing table.
func (f *Feedback) ScanRef() (id string, phishing bool) {
	if f.PhishingHistoryID != "" {
		return f.PhishingHistoryID, true
	}
	return f.ScanHistoryID, false
}

// HasValidRef enforces the XOR invariant on the scan reference.
func (f *Feedback) HasValidRef() bool {
	return (f.ScanHistoryID == "") != (f.PhishingHistoryID == "")
}

func (f *Feedback) Reject(reason string) {
	now := time.Now()
	f.Status = FeedbackRejected
	f.ReviewNotes = reason
	f.ReviewedAt = &now
}

// QualityScore rates a feedback item 0-100 from owner track record and
// submission substance. Corrections outrank confirmations.
func QualityScore(priorApproved, commentLen int, fbType FeedbackType, recentScans int) int {
	score := 50
	bonus := priorApproved * 5
	if bonus > 20 {
		bonus = 20
	}
	score += bonus
	if commentLen > 10 {
		score += 10
	}
	if fbType != FeedbackConfirmed {
		score += 10
	}
	if recentScans > 10 {
		score += 10
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// FeedbackStats is the aggregate view served to admins.
type FeedbackStats struct {
	ByStatus          map[FeedbackStatus]int `json:"by_status"`
	ByType            map[FeedbackType]int   `json:"by_type"`
	FalsePositiveRate float64                `json:"false_positive_rate"`
	FalseNegativeRate float64                `json:"false_negative_rate"`
}
