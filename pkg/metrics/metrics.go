package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Availability engine metrics
	BusyRangeFetches      *prometheus.CounterVec
	DegradedEvaluations   prometheus.Counter
	SlotGenerationLatency prometheus.Histogram
	ScheduleCacheLookups  *prometheus.CounterVec
	NormalizerSkips       prometheus.Counter

	// Snapshot worker metrics
	SnapshotRuns    *prometheus.CounterVec
	SnapshotLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics
func NewMetrics(namespace, subsystem string) *Metrics {
	return &Metrics{
		BusyRangeFetches: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "busy_range_fetches_total",
			Help:      "Busy-range fetches against the booking store, by outcome",
		}, []string{"status"}),
		DegradedEvaluations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "degraded_evaluations_total",
			Help:      "Day evaluations computed without busy-range data after a fetch failure",
		}),
		SlotGenerationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_generation_duration_seconds",
			Help:      "Time spent generating and evaluating one day's slots",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		ScheduleCacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "schedule_cache_lookups_total",
			Help:      "Normalized-schedule cache lookups, by result",
		}, []string{"result"}),
		NormalizerSkips: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "normalizer_skipped_fragments_total",
			Help:      "Malformed calendar-config fragments dropped during normalization",
		}),

		SnapshotRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_runs_total",
			Help:      "Availability snapshot worker runs, by outcome",
		}, []string{"status"}),
		SnapshotLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_duration_seconds",
			Help:      "Time spent precomputing one organization's availability snapshot",
			Buckets:   prometheus.DefBuckets,
		}),

		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "database_operation_duration_seconds",
			Help:      "Database operation latency",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}
