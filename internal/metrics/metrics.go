// Package metrics exposes the Prometheus collectors shared by COACH services.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coach",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"service", "method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coach",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"service", "method", "path"},
	)

	proxyCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "proxy",
			Name:      "calls_total",
			Help:      "Total number of outbound proxy calls.",
		},
		[]string{"target", "endpoint", "outcome"},
	)

	proxyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coach",
			Subsystem: "proxy",
			Name:      "call_duration_seconds",
			Help:      "Duration of outbound proxy calls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"target", "endpoint"},
	)

	estimationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "estimation",
			Name:      "runs_total",
			Help:      "Total number of estimation method runs.",
		},
		[]string{"method", "success"},
	)

	estimationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coach",
			Subsystem: "estimation",
			Name:      "run_duration_seconds",
			Help:      "Duration of estimation method runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		proxyCalls,
		proxyDuration,
		estimationRuns,
		estimationDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// IncInFlight and DecInFlight track requests currently being served.
func IncInFlight() { httpInFlight.Inc() }
func DecInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records a served request. path should be a route
// template, not the raw URL, to keep label cardinality bounded.
func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(service, method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordProxyCall records an outbound proxy call. outcome is "ok",
// "remote_error" or "transport_error".
func RecordProxyCall(target, endpoint, outcome string, duration time.Duration) {
	proxyCalls.WithLabelValues(target, endpoint, outcome).Inc()
	proxyDuration.WithLabelValues(target, endpoint).Observe(duration.Seconds())
}

// RecordEstimation records an estimation method run.
func RecordEstimation(method string, duration time.Duration, success bool) {
	if method == "" {
		method = "unknown"
	}
	if duration <= 0 {
		duration = time.Millisecond
	}
	estimationRuns.WithLabelValues(method, strconv.FormatBool(success)).Inc()
	estimationDuration.WithLabelValues(method).Observe(duration.Seconds())
}
