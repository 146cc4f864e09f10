package widgets

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricModelsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "widgetd",
			Subsystem: "manager",
			Name:      "models_live",
			Help:      "Live widget models in the registry",
		},
	)

	metricCommOpens = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "manager",
			Name:      "comm_opens_total",
			Help:      "Total kernel-initiated comm opens accepted",
		},
	)

	metricReconstructRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "manager",
			Name:      "reconstruct_runs_total",
			Help:      "Total reconstruction passes by outcome",
		},
		[]string{"outcome"},
	)

	metricReconstructSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "widgetd",
			Subsystem: "manager",
			Name:      "reconstruct_duration_seconds",
			Help:      "Duration of successful reconstruction passes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(metricModelsLive, metricCommOpens, metricReconstructRuns, metricReconstructSeconds)
}
