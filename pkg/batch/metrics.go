package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for batch dispatch.
var (
	batchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_runs_total",
		Help: "Total batches started by variant and mode",
	}, []string{"variant", "mode"})

	batchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetch_batch_failed_urls_total",
		Help: "Total URLs that failed inside a batch by variant",
	}, []string{"variant"})

	batchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetch_batch_duration_seconds",
		Help:    "Wall time from dispatch to barrier by variant",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
	}, []string{"variant"})
)
