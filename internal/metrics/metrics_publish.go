package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PublishFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relocator_publish_failed_total",
			Help: "Number of failed artifact uploads",
		},
		[]string{"storage"},
	)

	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relocator_publish_duration_seconds",
			Help:    "Artifact upload duration in seconds",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"storage"},
	)

	LastPublish = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relocator_last_publish_timestamp",
			Help: "Unix timestamp of the last successful artifact upload",
		},
		[]string{"storage"},
	)
)
