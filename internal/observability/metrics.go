package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	lifecycleOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gamehost",
			Subsystem: "lifecycle",
			Name:      "operations_total",
			Help:      "Lifecycle operations by outcome.",
		},
		[]string{"op", "result"},
	)
	launchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gamehost",
			Subsystem: "launch",
			Name:      "retries_total",
			Help:      "Launch retries triggered by conflicts.",
		},
		[]string{"reason"},
	)
	runtimeCalls = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gamehost",
			Subsystem: "runtime",
			Name:      "call_duration_seconds",
			Help:      "Container runtime call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"call"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gamehost",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gamehost",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(lifecycleOps, launchRetries, runtimeCalls, httpRequests, httpDuration)
	})
}

// MetricsHandler serves the default Prometheus registry.
func MetricsHandler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordLifecycle(op string, err error) {
	RegisterMetrics()
	result := "ok"
	if err != nil {
		result = "error"
	}
	lifecycleOps.WithLabelValues(op, result).Inc()
}

func RecordLaunchRetry(reason string) {
	RegisterMetrics()
	launchRetries.WithLabelValues(reason).Inc()
}

func ObserveRuntimeCall(call string, duration time.Duration) {
	RegisterMetrics()
	runtimeCalls.WithLabelValues(call).Observe(duration.Seconds())
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
