// Package metrics exposes the Prometheus metrics of the fetch packages.
// All metrics are defined in their respective packages (fetcher, batch, cache,
// ratelimit) to maintain modularity and avoid circular dependencies.
//
// This package provides documentation and the HTTP handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the fetch packages.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Request Metrics (pkg/fetcher):
//   - fetch_requests_total{method, status} (Counter): Outbound requests by HTTP method and status
//   - fetch_request_duration_seconds{method} (Histogram): Request duration by method
//   - fetch_errors_total{class} (Counter): Failed attempts by class (network, status, breaker, other)
//   - fetch_breaker_transitions_total{host, to} (Counter): Circuit breaker state changes
//
// Retry Metrics (pkg/fetcher):
//   - fetch_retries_total{error_class} (Counter): Retry attempts by error class
//   - fetch_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - fetch_retry_exhausted_total{kind} (Counter): Calls that used up every attempt
//
// Batch Metrics (pkg/batch):
//   - fetch_batch_runs_total{variant, mode} (Counter): Batches started
//   - fetch_batch_failed_urls_total{variant} (Counter): URLs that failed inside a batch
//   - fetch_batch_duration_seconds{variant} (Histogram): Dispatch-to-barrier wall time
//
// Rate Limit Metrics (pkg/ratelimit):
//   - fetch_ratelimit_wait_seconds{backend} (Histogram): Time spent waiting for a dispatch slot
//
// Cache Metrics (pkg/cache):
//   - fetch_cache_hits_total (Counter): Page cache hits
//   - fetch_cache_misses_total (Counter): Page cache misses
//   - fetch_cache_stored_bytes_total (Counter): Bytes written to the page cache
//   - fetch_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(fetch_cache_hits_total[5m])) /
//   (sum(rate(fetch_cache_hits_total[5m])) + sum(rate(fetch_cache_misses_total[5m])))
//
//   # Retry Pressure
//   sum by (error_class) (rate(fetch_retries_total[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(fetch_request_duration_seconds_bucket[5m]))
//
//   # Share of Time Spent Waiting on Spacing
//   rate(fetch_ratelimit_wait_seconds_sum[5m])
