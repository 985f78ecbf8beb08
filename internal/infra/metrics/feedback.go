package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(feedbackOutcomesTotal, feedbackQualityScore) }

var feedbackOutcomesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedback_outcomes_total",
		Help: "Feedback lifecycle outcomes (submitted/approved/rejected/auto_rejected/flagged).",
	},
	[]string{"outcome"},
)

var feedbackQualityScore = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "feedback_quality_score",
		Help:    "Distribution of computed feedback quality scores.",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	},
)

func IncFeedback(outcome string) {
	feedbackOutcomesTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveQualityScore(score int) {
	feedbackQualityScore.Observe(float64(score))
}
