// Package metrics exposes the importer's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ImportsTotal counts finished imports by terminal status
	// (completed, needs_mapping, failed).
	ImportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inmoledger",
		Subsystem: "importer",
		Name:      "imports_total",
		Help:      "Finished statement imports by terminal status.",
	}, []string{"status", "format"})

	// RowsProcessed counts data rows by outcome (imported, skipped, duplicate).
	RowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inmoledger",
		Subsystem: "importer",
		Name:      "rows_processed_total",
		Help:      "Statement rows by processing outcome.",
	}, []string{"outcome"})

	// ProfileMatches counts bank profile lookups by match method
	// (fingerprint, sample_hash, fuzzy_headers, miss).
	ProfileMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inmoledger",
		Subsystem: "importer",
		Name:      "profile_matches_total",
		Help:      "Bank profile lookups by match method.",
	}, []string{"method"})

	// ImportDuration observes wall time of the full pipeline per file.
	ImportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "inmoledger",
		Subsystem: "importer",
		Name:      "import_duration_seconds",
		Help:      "Wall time of one statement import.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
