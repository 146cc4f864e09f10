package document

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricSaveTriggers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "document",
			Name:      "save_triggers_total",
			Help:      "Total before-save events fired",
		},
	)

	metricRerenders = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "document",
			Name:      "rerenders_total",
			Help:      "Total widget output rerender requests",
		},
	)
)

func init() {
	prometheus.MustRegister(metricSaveTriggers, metricRerenders)
}
