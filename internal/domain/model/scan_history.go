package model

import (
	"time"

	"github.com/google/uuid"
)

// ScanHistory links an owner to a prediction. Anonymous scans are never
// persisted, so OwnerID is always set on stored rows.
type ScanHistory struct {
	ID            string
	OwnerID       string
	ScanType      JobKind
	ContentDigest string
	// Content is the scanned text (for voice scans, the transcript). Kept so
	// corrected feedback can be materialized into training samples.
	Content   string
	Result    PredictionResult
	FromCache bool
	CreatedAt time.Time
}

func NewScanHistory(ownerID string, scanType JobKind, digest, content string, res PredictionResult) *ScanHistory {
	return &ScanHistory{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		ScanType:      scanType,
		ContentDigest: digest,
		Content:       content,
		Result:        res,
		FromCache:     res.FromCache,
		CreatedAt:     time.Now(),
	}
}

// PhishingHistory records URL/phishing analyses separately from spam scans;
// feedback may reference either table, never both.
type PhishingHistory struct {
	ID        string
	OwnerID   string
	URL       string
	Deep      bool
	Result    PredictionResult
	FromCache bool
	CreatedAt time.Time
}

func NewPhishingHistory(ownerID, url string, deep bool, res PredictionResult) *PhishingHistory {
	return &PhishingHistory{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		URL:       url,
		Deep:      deep,
		Result:    res,
		FromCache: res.FromCache,
		CreatedAt: time.Now(),
	}
}

// TrendPoint is one bucket of the time-bucketed scan aggregate.
type TrendPoint struct {
	Bucket time.Time `json:"bucket"`
	Total  int       `json:"total"`
	Spam   int       `json:"spam"`
}
