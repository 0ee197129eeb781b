// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "course_sync_runs_total",
			Help: "Total number of course sync runs",
		},
		[]string{"result"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "course_sync_duration_seconds",
			Help:    "Full course sync duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"result"},
	)

	CanvasRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "canvas_request_duration_seconds",
			Help:    "Canvas API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	SubmissionsSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "submissions_skipped_total",
			Help: "Submissions dropped because no matching enrollment exists",
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
