package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(retrainRunsTotal) }

var retrainRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "retraining_runs_total",
		Help: "Retraining runs by outcome (deployed/rolled_back/skipped/failed).",
	},
	[]string{"outcome"},
)

func IncRetrainRun(outcome string) {
	retrainRunsTotal.WithLabelValues(norm(outcome)).Inc()
}
