package model

// PredictionResult is the classifier's verdict for one payload. Immutable
// once produced; cached copies are replayed verbatim with FromCache set.
type PredictionResult struct {
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	Indicators []string       `json:"indicators,omitempty"`
	Transcript string         `json:"transcript,omitempty"`
	RawDetails map[string]any `json:"raw_details,omitempty"`
	FromCache  bool           `json:"from_cache"`
}

// Merge combines a URL verdict with a secondary phishing analysis of the
// accompanying text: combined confidence is the average of the two signals,
// and the more confident label wins.
func (p PredictionResult) Merge(other PredictionResult) PredictionResult {
	merged := p
	if other.Confidence > p.Confidence {
		merged.Label = other.Label
	}
	merged.Confidence = (p.Confidence + other.Confidence) / 2
	merged.Indicators = append(append([]string{}, p.Indicators...), other.Indicators...)
	return merged
}
