package persist

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "persist",
			Name:      "saves_total",
			Help:      "Total widget state saves by outcome",
		},
		[]string{"outcome"},
	)

	metricLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "persist",
			Name:      "loads_total",
			Help:      "Total widget state loads by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(metricSaves, metricLoads)
}
