// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// PipelineStageDuration tracks per-stage pipeline latency.
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_seconds",
			Help:    "Answer pipeline stage duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"stage", "status"},
	)

	// PipelineRunsTotal tracks pipeline run outcomes.
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total answer pipeline runs by outcome",
		},
		[]string{"status"},
	)

	// RetrievedDocuments tracks how many documents each run retrieved.
	RetrievedDocuments = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_retrieved_documents",
			Help:    "Documents retrieved per pipeline run",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	// StoreRetriesTotal tracks store operations that needed a retry.
	StoreRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_retries_total",
			Help: "Store operations retried after throttling or failure",
		},
		[]string{"kind"},
	)

	// StreamConnectionsActive tracks active streaming responses.
	StreamConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connections_active",
			Help: "Number of active streaming responses",
		},
	)

	// MessagesTotal tracks persisted messages by role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages persisted",
		},
		[]string{"role"},
	)

	// ThreadsTotal tracks created threads.
	ThreadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "threads_total",
			Help: "Total chat threads created",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordPipelineStage records one pipeline stage execution.
func RecordPipelineStage(stage, status string, duration float64) {
	PipelineStageDuration.WithLabelValues(stage, status).Observe(duration)
}

// RecordPipelineRun records a pipeline run outcome.
func RecordPipelineRun(status string) {
	PipelineRunsTotal.WithLabelValues(status).Inc()
}

// ObserveRetrievedDocuments records the document count of a run.
func ObserveRetrievedDocuments(n int) {
	RetrievedDocuments.Observe(float64(n))
}

// RecordStoreRetry records a retried store operation.
func RecordStoreRetry(kind string) {
	StoreRetriesTotal.WithLabelValues(kind).Inc()
}

// IncrementStreamConnections increments the active stream count.
func IncrementStreamConnections() {
	StreamConnectionsActive.Inc()
}

// DecrementStreamConnections decrements the active stream count.
func DecrementStreamConnections() {
	StreamConnectionsActive.Dec()
}

// RecordMessage records a persisted message.
func RecordMessage(role string) {
	MessagesTotal.WithLabelValues(role).Inc()
}
