// Package metrics provides Prometheus metrics for the livetrack engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the livetrack service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Frame Pipeline Metrics
	framesReceived  prometheus.Counter
	framesApplied   prometheus.Counter
	framesDuplicate prometheus.Counter
	framesUnmatched prometheus.Counter
	framesInvalid   prometheus.Counter

	// Entity Store Metrics
	trackedEntities    prometheus.Gauge
	movingEntities     prometheus.Gauge
	lowBatteryEntities prometheus.Gauge
	activeAnimations   prometheus.Gauge

	// Stream Connection Metrics
	streamState      *prometheus.GaugeVec
	streamReconnects prometheus.Counter

	// Roster Metrics
	rosterSize     prometheus.Gauge
	scopeChanges   prometheus.Counter
	rosterRefreshE prometheus.Counter

	// Queue Metrics - Frame queue health
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueDrops    *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "livetrack",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Frame Pipeline Metrics - every inbound frame ends in exactly one of
	// applied, duplicate, unmatched, or invalid
	m.framesReceived = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_received_total",
		Help:      "Total number of position frames received from the feed",
	})

	m.framesApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_applied_total",
		Help:      "Total number of position frames applied to the entity store",
	})

	m.framesDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_duplicate_total",
		Help:      "Total number of replayed frames suppressed by deduplication",
	})

	m.framesUnmatched = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_unmatched_total",
		Help:      "Total number of frames dropped because the entity has no assignment",
	})

	m.framesInvalid = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_invalid_total",
		Help:      "Total number of malformed frames rejected at the wire",
	})

	// Entity Store Metrics - live picture of the tracked fleet
	m.trackedEntities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tracked_entities",
		Help:      "Current number of tracked entities in the store",
	})

	m.movingEntities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "moving_entities",
		Help:      "Current number of entities reporting movement",
	})

	m.lowBatteryEntities = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "low_battery_entities",
		Help:      "Current number of entities reporting low battery",
	})

	m.activeAnimations = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_animations",
		Help:      "Current number of in-flight marker glides",
	})

	// Stream Connection Metrics
	m.streamState = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "stream_state",
			Help:      "Feed connection state (1 for the current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	m.streamReconnects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stream_reconnects_total",
		Help:      "Total number of feed reconnect attempts",
	})

	// Roster Metrics
	m.rosterSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "roster_size",
		Help:      "Number of trackable assignments in the active roster",
	})

	m.scopeChanges = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scope_changes_total",
		Help:      "Total number of event scope switches",
	})

	m.rosterRefreshE = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "roster_refresh_errors_total",
		Help:      "Total number of failed roster refreshes",
	})

	// Queue Metrics - Frame queue health
	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Current size of the frame queue (backlog indicator)",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Maximum frame queue capacity",
	})

	m.queueDrops = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "queue_drops_total",
			Help:      "Total number of frames dropped by the queue, by reason",
		},
		[]string{"reason"},
	)

	// HTTP Performance Metrics - User experience indicators
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds (user experience)",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	// Enhanced Error Metrics - Detailed error tracking
	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_type_total",
			Help:      "Total number of errors by type",
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Total number of errors by endpoint",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "error_latency_milliseconds",
			Help:      "Latency of operations that resulted in errors",
			Buckets:   m.histogramBuckets,
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})
}

// Frame Pipeline Functions.

// RecordFrameReceived increments the received frames counter.
func RecordFrameReceived() {
	globalManager.framesReceived.Inc()
}

// RecordFrameApplied increments the applied frames counter.
func RecordFrameApplied() {
	globalManager.framesApplied.Inc()
}

// RecordFrameDuplicate increments the duplicate frames counter.
func RecordFrameDuplicate() {
	globalManager.framesDuplicate.Inc()
}

// RecordFrameUnmatched increments the unmatched frames counter.
func RecordFrameUnmatched() {
	globalManager.framesUnmatched.Inc()
}

// RecordFrameInvalid increments the invalid frames counter.
func RecordFrameInvalid() {
	globalManager.framesInvalid.Inc()
}

// Entity Store Functions.

// UpdateTrackedEntities sets the current tracked entity count.
func UpdateTrackedEntities(count int) {
	globalManager.trackedEntities.Set(float64(count))
}

// UpdateMovingEntities sets the current moving entity count.
func UpdateMovingEntities(count int) {
	globalManager.movingEntities.Set(float64(count))
}

// UpdateLowBatteryEntities sets the current low battery entity count.
func UpdateLowBatteryEntities(count int) {
	globalManager.lowBatteryEntities.Set(float64(count))
}

// UpdateActiveAnimations sets the in-flight animation count.
func UpdateActiveAnimations(count int) {
	globalManager.activeAnimations.Set(float64(count))
}

// Stream Connection Functions.

// knownStreamStates enumerates the connection lifecycle for the state gauge.
var knownStreamStates = []string{"disconnected", "connecting", "connected", "authenticating", "subscribed"} //nolint:gochecknoglobals // fixed label set

// UpdateStreamState marks the current feed connection state.
func UpdateStreamState(state string) {
	for _, s := range knownStreamStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		globalManager.streamState.WithLabelValues(s).Set(v)
	}
}

// RecordStreamReconnect increments the reconnect attempts counter.
func RecordStreamReconnect() {
	globalManager.streamReconnects.Inc()
}

// Roster Functions.

// UpdateRosterSize sets the active roster size.
func UpdateRosterSize(count int) {
	globalManager.rosterSize.Set(float64(count))
}

// RecordScopeChange increments the scope change counter.
func RecordScopeChange() {
	globalManager.scopeChanges.Inc()
}

// RecordRosterRefreshError increments the roster refresh failure counter.
func RecordRosterRefreshError() {
	globalManager.rosterRefreshE.Inc()
}

// Queue Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueDrop increments the queue drop counter for a reason.
func RecordQueueDrop(reason string) {
	globalManager.queueDrops.WithLabelValues(reason).Inc()
}

// HTTP Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Enhanced Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
