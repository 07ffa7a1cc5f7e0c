// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DetectionScansTotal tracks clash detection scans
	DetectionScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "detection",
			Name:      "scans_total",
			Help:      "Total number of clash detection scans",
		},
	)

	// DetectionScanDuration tracks clash detection scan duration in seconds
	DetectionScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "detection",
			Name:      "scan_duration_seconds",
			Help:      "Duration of clash detection scans in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// ClashesDetected tracks clashes found per scan by entity type
	ClashesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "detection",
			Name:      "clashes_total",
			Help:      "Total number of clashes surfaced to operators by entity type",
		},
		[]string{"entity_type"},
	)

	// MergesTotal tracks merge resolutions by entity type and outcome
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "merges_total",
			Help:      "Total number of merge resolutions by entity type and outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	// DeletionsTotal tracks duplicate deletions by entity type and outcome
	DeletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "deletions_total",
			Help:      "Total number of duplicate deletions by entity type and outcome",
		},
		[]string{"entity_type", "outcome"},
	)

	// ReferencesReassigned tracks dependent records moved during merges
	ReferencesReassigned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "references_reassigned_total",
			Help:      "Total number of dependent records reassigned during merges",
		},
		[]string{"entity_type"},
	)
)

// Outcome labels for resolution counters
const (
	OutcomeCommitted       = "committed"
	OutcomeAlreadyResolved = "already_resolved"
	OutcomeConflict        = "conflict"
	OutcomeRejected        = "rejected"
	OutcomeFailed          = "failed"
)
