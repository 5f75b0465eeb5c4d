package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PassFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relocator_pass_failed_total",
			Help: "Number of relocation passes that failed",
		},
		[]string{"error_type"},
	)

	PassCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relocator_pass_count_total",
			Help: "Total number of relocation passes",
		},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relocator_pass_duration_seconds",
			Help:    "Relocation pass duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
	)

	EntriesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relocator_entries_total",
			Help: "Archive entries processed, by outcome",
		},
		[]string{"outcome"},
	)
)
