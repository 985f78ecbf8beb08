package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, jobDurationMs) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "scan_jobs_processed_total",
		Help: "Total number of queue jobs processed, labeled by kind and status.",
	},
	[]string{"kind", "status"}, // 'completed', 'failed', 'retried', 'skipped'
)

var jobDurationMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "scan_job_duration_ms",
		Help:    "Job processing latency distribution in milliseconds.",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
	},
	[]string{"kind"},
)

func IncJob(kind, status string) {
	jobsProcessedTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func ObserveJobDuration(kind string, ms int) {
	jobDurationMs.WithLabelValues(norm(kind)).Observe(float64(ms))
}
