package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection manager metrics
	HostBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "controlplane_host_breaker_state",
			Help: "Circuit breaker state per host: 0=closed, 1=open, 2=half_open",
		},
		[]string{"host_id"},
	)

	HostPoolSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_host_pool_size",
			Help: "Number of hosts tracked by the connection pool",
		},
	)

	HostProbeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_host_probe_failures_total",
			Help: "Total failed docker ping probes by host",
		},
		[]string{"host_id"},
	)

	// Stream registry metrics
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_streams_active",
			Help: "Number of shared streams with at least one subscriber",
		},
	)

	StreamSubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_stream_subscribers_active",
			Help: "Number of active stream subscribers across all streams",
		},
	)

	StreamFramesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_stream_frames_dropped_total",
			Help: "Total frames dropped for slow consumers, by stream kind",
		},
		[]string{"kind"},
	)

	// Audit metrics
	AuditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_audit_queue_depth",
			Help: "Number of audit events currently queued for async persistence",
		},
	)

	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "controlplane_audit_dropped_total",
			Help: "Total audit events that fell back to synchronous write because the queue was full",
		},
	)

	// Session metrics
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_login_attempts_total",
			Help: "Total login attempts by result",
		},
		[]string{"result"},
	)

	ActiveSessionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_active_sessions_total",
			Help: "Number of non-revoked, non-expired refresh tokens",
		},
	)

	// WebSocket bridge metrics
	WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_ws_connections_active",
			Help: "Number of currently open websocket bridge connections",
		},
	)

	// HTTP API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Docker operation metrics
	DockerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "controlplane_docker_operation_duration_seconds",
			Help:    "Time taken for a routed Docker operation to complete",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DockerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "controlplane_docker_operations_total",
			Help: "Total routed Docker operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	// Wizard metrics
	WizardInstancesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "controlplane_wizard_instances_active",
			Help: "Number of in-progress wizard instances",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HostBreakerState,
		HostPoolSize,
		HostProbeFailuresTotal,
		StreamsActive,
		StreamSubscribersActive,
		StreamFramesDroppedTotal,
		AuditQueueDepth,
		AuditDroppedTotal,
		LoginAttemptsTotal,
		ActiveSessionsTotal,
		WSConnectionsActive,
		APIRequestsTotal,
		APIRequestDuration,
		DockerOperationDuration,
		DockerOperationsTotal,
		WizardInstancesActive,
	)
}

// Handler returns the Prometheus HTTP handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
