package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route, method and status",
		},
		[]string{"path", "method", "status"},
	)

	metricLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "widgetd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	metricInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "widgetd",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "HTTP requests currently being served",
		},
	)

	metricRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "widgetd",
			Subsystem: "http",
			Name:      "rejects_total",
			Help:      "Requests rejected before reaching the widget manager",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(metricRequests, metricLatency, metricInflight, metricRejects)
}

// MetricsMiddleware records request count, latency and in-flight totals.
// The route label is resolved after serving, once chi has matched the full
// pattern; requests that match no route fall back to the raw URL path.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metricInflight.Inc()
		defer metricInflight.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start).Seconds()

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route, method, code := routeLabel(r), r.Method, strconv.Itoa(status)
		metricRequests.WithLabelValues(route, method, code).Inc()
		metricLatency.WithLabelValues(route, method, code).Observe(elapsed)
	})
}

// routeLabel prefers the matched chi pattern over the raw path to keep
// label cardinality bounded.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// incrementReject counts a request turned away before any handler ran.
func incrementReject(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	metricRejects.WithLabelValues(reason).Inc()
}
