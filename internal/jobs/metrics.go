package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmacy_job_runs_total",
			Help: "Background job runs by outcome",
		},
		[]string{"job", "outcome"},
	)

	jobItems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pharmacy_job_items_total",
			Help: "Items handled by background jobs",
		},
		[]string{"job"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pharmacy_job_duration_seconds",
			Help:    "Background job run duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)
