package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// SnapshotsFetched counts scan-source fetches by query kind.
	SnapshotsFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmtrack",
			Name:      "snapshots_fetched_total",
			Help:      "Total number of scan-source snapshot fetches",
		},
		[]string{"query"},
	)

	// RowsParsed counts scan-source rows successfully decoded.
	RowsParsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmtrack",
			Name:      "rows_parsed_total",
			Help:      "Total number of scan-source rows decoded into findings",
		},
		[]string{"report"},
	)

	// RowsSkipped counts malformed or empty scan-source rows discarded.
	RowsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmtrack",
			Name:      "rows_skipped_total",
			Help:      "Total number of scan-source rows skipped",
		},
		[]string{"report", "reason"},
	)

	// FindingsIngested counts finding upserts by outcome.
	FindingsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmtrack",
			Name:      "findings_ingested_total",
			Help:      "Total number of findings written to the store",
		},
		[]string{"result"},
	)

	// WorkflowTransitions counts automatic workflow state transitions.
	WorkflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmtrack",
			Name:      "workflow_transitions_total",
			Help:      "Total number of automatic workflow state transitions",
		},
		[]string{"transition"},
	)

	// DuplicatesSuppressed counts assets dropped as duplicates.
	DuplicatesSuppressed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vmtrack",
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of duplicate assets suppressed",
		},
		[]string{"reason"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// This function is idempotent and can be called multiple times safely.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(SnapshotsFetched)
		prometheus.DefaultRegisterer.Register(RowsParsed)
		prometheus.DefaultRegisterer.Register(RowsSkipped)
		prometheus.DefaultRegisterer.Register(FindingsIngested)
		prometheus.DefaultRegisterer.Register(WorkflowTransitions)
		prometheus.DefaultRegisterer.Register(DuplicatesSuppressed)
	})
}
