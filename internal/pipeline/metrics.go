// SPDX-License-Identifier: MIT

package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	indexedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadex_indexed_total",
		Help: "Total number of completed conversions",
	}, []string{"kind"})

	duplicateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadex_duplicate_total",
		Help: "Total number of duplicate merges",
	}, []string{"kind"})

	skippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadex_skipped_total",
		Help: "Total number of files skipped via the catalog skip check",
	}, []string{"kind"})

	failedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediadex_failed_total",
		Help: "Total number of per-file conversion failures",
	}, []string{"kind"})
)
