package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store holds the Prometheus metrics collectors.
type Store struct {
	Registry              *prometheus.Registry // Use a custom registry
	SyncRunning           prometheus.Gauge
	RunDuration           prometheus.Histogram
	ObjectSyncDuration    *prometheus.HistogramVec
	ObjectsProcessedTotal *prometheus.CounterVec
	SyncErrorsTotal       *prometheus.CounterVec
	AuditWritesTotal      *prometheus.CounterVec
	RollbacksTotal        *prometheus.CounterVec
	DBReachable           *prometheus.GaugeVec
}

// NewMetricsStore creates and registers Prometheus metrics.
func NewMetricsStore() *Store {
	registry := prometheus.NewRegistry() // Create a non-global registry

	store := &Store{
		Registry: registry,
		SyncRunning: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "schemasync_up",
			Help: "Indicates if a schemasync run is currently in progress (1 = running, 0 = not running).",
		}),
		RunDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "schemasync_run_duration_seconds",
			Help:    "Duration of the entire schemasync run across all targets.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~9h
		}),
		ObjectSyncDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "schemasync_object_sync_duration_seconds",
			Help:    "Duration histogram for synchronizing individual schema objects.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5min
		}, []string{"object_type"}),
		ObjectsProcessedTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "schemasync_objects_processed_total",
			Help: "Total number of schema objects processed, labeled by object type and terminal outcome.",
		}, []string{"object_type", "outcome"}),
		SyncErrorsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "schemasync_errors_total",
			Help: "Total number of errors encountered during synchronization, labeled by kind and object type.",
		}, []string{"kind", "object_type"}), // Kinds: enumeration, source_definition, classification, validation, execution, rollback, sync_log_schema
		AuditWritesTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "schemasync_audit_writes_total",
			Help: "Total number of synchronization log writes, labeled by status.",
		}, []string{"status"}), // Statuses: ok, failed
		RollbacksTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "schemasync_rollbacks_total",
			Help: "Total number of rollback attempts, labeled by status.",
		}, []string{"status"}), // Statuses: ok, no_history, failed
		DBReachable: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "schemasync_db_reachable",
			Help: "Whether the last readiness ping of a database succeeded (1 = reachable, 0 = unreachable).",
		}, []string{"db_alias"}), // Labels: source, target_<n>
	}

	return store
}
