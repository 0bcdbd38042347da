package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK    = "ok"
	ResultNoop  = "noop"
	ResultError = "error"
)

var (
	registerOnce sync.Once

	controlRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linfa",
			Subsystem: "control",
			Name:      "requests_total",
			Help:      "Control requests by type and result.",
		},
		[]string{"request", "result"},
	)
	controlDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linfa",
			Subsystem: "control",
			Name:      "request_duration_seconds",
			Help:      "Control request handling duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"request"},
	)
	replySendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "linfa",
			Subsystem: "control",
			Name:      "reply_send_failures_total",
			Help:      "Replies that could not be delivered within the send timeout.",
		},
	)
	heartbeatConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "linfa",
			Subsystem: "heartbeat",
			Name:      "connected",
			Help:      "1 while a controller has sent a request within the max heartbeat delay.",
		},
	)
	lifecycleStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "linfa",
			Subsystem: "lifecycle",
			Name:      "status",
			Help:      "1 for the current executor status, 0 otherwise.",
		},
		[]string{"status"},
	)
	lifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linfa",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Executor status transitions.",
		},
		[]string{"from", "to"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "linfa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "linfa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			controlRequests,
			controlDuration,
			replySendFailures,
			heartbeatConnected,
			lifecycleStatus,
			lifecycleTransitions,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordControlRequest(request, result string, duration time.Duration) {
	RegisterMetrics()
	controlRequests.WithLabelValues(request, result).Inc()
	controlDuration.WithLabelValues(request).Observe(duration.Seconds())
}

func RecordReplySendFailure() {
	RegisterMetrics()
	replySendFailures.Inc()
}

func SetHeartbeatConnected(connected bool) {
	RegisterMetrics()
	v := 0.0
	if connected {
		v = 1
	}
	heartbeatConnected.Set(v)
}

// RecordTransition moves the status gauge from one label to the other.
func RecordTransition(from, to string) {
	RegisterMetrics()
	if from != "" {
		lifecycleStatus.WithLabelValues(from).Set(0)
		lifecycleTransitions.WithLabelValues(from, to).Inc()
	}
	lifecycleStatus.WithLabelValues(to).Set(1)
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
