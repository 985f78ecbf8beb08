package model

// TrainingSample is the flat record shape consumed by the retraining RPC.
type TrainingSample struct {
	Text           string       `json:"text"`
	OriginalLabel  string       `json:"original_label"`
	CorrectedLabel string       `json:"corrected_label"`
	FeedbackType   FeedbackType `json:"feedback_type"`
	ScanType       JobKind      `json:"scan_type"`
}

// TrainingBatch is one export of approved feedback, stamped with a batch id.
type TrainingBatch struct {
	BatchID     string
	Samples     []TrainingSample
	FeedbackIDs []string
}

// LabelPolarity maps a corrected label onto the binary class the trainer
// expects: spam/phishing are the positive class.
func LabelPolarity(correctedLabel string) int {
	switch correctedLabel {
	case "spam", "phishing":
		return 1
	}
	return 0
}
