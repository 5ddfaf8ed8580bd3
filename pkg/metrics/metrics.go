// Package metrics provides Prometheus metrics for the Weave service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncOperationsTotal tracks store sync operations by record type, store and status
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weave",
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Total number of store sync operations by record type, store and status",
		},
		[]string{"record_type", "store", "status"},
	)

	// SyncDuration tracks full dispatch duration per record type
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "weave",
			Subsystem: "sync",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of record dispatch across all stores in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"record_type", "operation"},
	)

	// BulkSyncRecordsTotal tracks records processed by bulk sync runs
	BulkSyncRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weave",
			Subsystem: "sync",
			Name:      "bulk_records_total",
			Help:      "Total number of records processed by bulk sync runs",
		},
		[]string{"record_type", "status"},
	)

	// OutboxPending tracks outbox entries awaiting dispatch
	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "weave",
			Subsystem: "outbox",
			Name:      "pending_entries",
			Help:      "Number of outbox entries awaiting dispatch",
		},
	)

	// OutboxProcessedTotal tracks outbox entries processed by status
	OutboxProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weave",
			Subsystem: "outbox",
			Name:      "processed_total",
			Help:      "Total number of outbox entries processed by status",
		},
		[]string{"status"},
	)

	// RetrievalRequestsTotal tracks context retrieval requests
	RetrievalRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weave",
			Subsystem: "retrieval",
			Name:      "requests_total",
			Help:      "Total number of context retrieval requests by status",
		},
		[]string{"status"},
	)

	// RetrievalDuration tracks context retrieval latency
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "weave",
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Duration of context retrieval requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// RetrievalCacheHits tracks retrieval cache hits and misses
	RetrievalCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weave",
			Subsystem: "retrieval",
			Name:      "cache_total",
			Help:      "Total number of retrieval cache lookups by result",
		},
		[]string{"result"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weave",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaMessagesConsumed tracks Kafka messages consumed by the ingest worker
	KafkaMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weave",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of messages consumed from Kafka by status",
		},
		[]string{"topic", "status"},
	)

	// MigrationChangesTotal tracks annotation changes found by the detector
	MigrationChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "weave",
			Subsystem: "migrations",
			Name:      "changes_total",
			Help:      "Total number of annotation changes found by the detector",
		},
		[]string{"change_type"},
	)
)

// RecordSync records a single store sync operation
func RecordSync(recordType, store, status string) {
	SyncOperationsTotal.WithLabelValues(recordType, store, status).Inc()
}

// RecordDispatch records a full dispatch across stores
func RecordDispatch(recordType, operation string, durationSeconds float64) {
	SyncDuration.WithLabelValues(recordType, operation).Observe(durationSeconds)
}

// RecordRetrieval records a context retrieval request
func RecordRetrieval(status string, durationSeconds float64) {
	RetrievalRequestsTotal.WithLabelValues(status).Inc()
	RetrievalDuration.Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
}
