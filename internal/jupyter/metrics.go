package jupyter

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricMessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "jupyter",
			Name:      "messages_sent_total",
			Help:      "Total protocol messages written to the kernel websocket",
		},
	)

	metricMessagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "jupyter",
			Name:      "messages_received_total",
			Help:      "Total protocol messages read from the kernel websocket",
		},
	)

	metricConnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "jupyter",
			Name:      "connects_total",
			Help:      "Total completed kernel handshakes, including reconnects",
		},
	)

	metricCommsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "widgetd",
			Subsystem: "jupyter",
			Name:      "comms_open",
			Help:      "Comm handles currently routed on the client",
		},
	)
)

func init() {
	prometheus.MustRegister(metricMessagesSent, metricMessagesReceived, metricConnects, metricCommsOpen)
}
