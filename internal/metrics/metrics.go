package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_tasks_submitted_total",
			Help: "Total number of tasks submitted to the dispatcher",
		},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_tasks_completed_total",
			Help: "Total number of tasks settled, by outcome status",
		},
		[]string{"status"}, // success|failed|timeout|crashed
	)

	// Queue metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_queue_depth",
			Help: "Current number of tasks waiting for a worker",
		},
	)

	PendingSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_pending_size",
			Help: "Current number of tasks assigned to a worker but not yet settled",
		},
	)

	// Worker metrics
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_active_workers",
			Help: "Current number of live workers (spawning, idle or busy)",
		},
	)

	WorkerCrashes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_worker_crashes_total",
			Help: "Total number of workers retired due to a panicked task, a task timeout or a start-task failure",
		},
	)

	// HTTP metrics, for the admin API
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatcher_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_http_requests_total",
			Help: "Total number of admin HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Telemetry-mirror metrics, for the optional Redis pub/sub publisher
	TelemetryPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatcher_telemetry_publish_errors_total",
			Help: "Total number of failed best-effort telemetry publishes",
		},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatcher_websocket_connections",
			Help: "Current number of connected admin WebSocket clients",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_websocket_messages_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
		[]string{"type"},
	)
)

// RecordTaskSubmission records a task submission.
func RecordTaskSubmission() {
	TasksSubmitted.Inc()
}

// RecordTaskCompletion records a task settling with the given outcome
// status: "success", "failed", "timeout" or "crashed".
func RecordTaskCompletion(status string) {
	TasksCompleted.WithLabelValues(status).Inc()
}

// SetQueueDepth sets the queue depth gauge.
func SetQueueDepth(depth float64) {
	QueueDepth.Set(depth)
}

// SetPendingSize sets the pending-table size gauge.
func SetPendingSize(size float64) {
	PendingSize.Set(size)
}

// SetActiveWorkers sets the active workers gauge.
func SetActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// IncrementWorkerCrash increments the worker crash counter.
func IncrementWorkerCrash() {
	WorkerCrashes.Inc()
}

// RecordHTTPRequest records an admin HTTP request.
func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTelemetryPublishError records a failed best-effort telemetry publish.
func RecordTelemetryPublishError() {
	TelemetryPublishErrors.Inc()
}

// SetWebSocketConnections sets the WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records a WebSocket message sent to clients.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}
