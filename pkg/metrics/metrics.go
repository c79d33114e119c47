// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ComparisonsTotal tracks field-by-field record comparisons performed
	ComparisonsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "comparisons_total",
			Help:      "Total number of record pair comparisons performed",
		},
		[]string{"tenant_id", "record_type"},
	)

	// OutcomesTotal tracks classification outcomes by band
	OutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "outcomes_total",
			Help:      "Total number of classified comparison outcomes by band",
		},
		[]string{"tenant_id", "record_type", "outcome"},
	)

	// ResolutionDuration tracks end-to-end resolution duration in seconds
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "duration_seconds",
			Help:      "Duration of candidate resolution in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"tenant_id", "record_type"},
	)

	// BlockSizes tracks how many records land in each generated block
	BlockSizes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "blocking",
			Name:      "block_size",
			Help:      "Number of records per generated block",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"tenant_id", "record_type"},
	)

	// AdapterFetchSize tracks population sizes fetched from record adapters
	AdapterFetchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "adapter",
			Name:      "fetch_size",
			Help:      "Number of records fetched per adapter lookup",
			Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"tenant_id", "record_type"},
	)

	// MergesTotal tracks merge executions by result
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Total number of merge executions by result",
		},
		[]string{"tenant_id", "record_type", "status"},
	)

	// MergeConflictsTotal tracks field conflicts encountered during merges
	MergeConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "conflicts_total",
			Help:      "Total number of field conflicts recorded during merges",
		},
		[]string{"tenant_id", "record_type"},
	)

	// UnmergesTotal tracks unmerge executions by result
	UnmergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "unmerge",
			Name:      "unmerges_total",
			Help:      "Total number of unmerge executions by result",
		},
		[]string{"tenant_id", "record_type", "status"},
	)

	// ReviewQueueDepth tracks pending review queue items
	ReviewQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "review",
			Name:      "queue_depth",
			Help:      "Number of pending review queue items",
		},
		[]string{"tenant_id", "record_type"},
	)

	// MergeLockWaitTime tracks time spent waiting for merge locks
	MergeLockWaitTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "lock_wait_seconds",
			Help:      "Time spent waiting to acquire merge locks in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"tenant_id"},
	)

	// EventsPublished tracks lifecycle events published to Kafka
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of lifecycle events published",
		},
		[]string{"event_type", "status"},
	)
)
