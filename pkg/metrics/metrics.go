// Package metrics exposes the Prometheus registry used by the catalog search
// client. Metrics are defined with promauto in the packages that record them
// (search, transport, cache, ratelimit, diagnostics); this package documents
// them and serves them over HTTP.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every promauto metric of this module uses.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Controller Metrics (pkg/search):
//   - search_fetches_total{kind, outcome} (Counter): Fetches by request kind (search, page) and outcome
//   - search_fetch_duration_seconds{kind} (Histogram): Fetch duration by request kind
//   - search_page_cache_total{result} (Counter): Page cache hit, miss, store, skip
//   - search_stale_completions_total (Counter): Completions discarded after a newer intent
//
// Diagnostics Metrics (pkg/diagnostics):
//   - search_diagnostics_reports_total (Counter): Unexpected failures reported
//
// Request Metrics (pkg/transport):
//   - catalog_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - catalog_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - catalog_errors_total{class} (Counter): Errors by class
//   - catalog_retries_total{error_class} (Counter): Retry attempts
//   - catalog_retry_backoff_seconds{error_class} (Histogram): Backoff durations
//   - catalog_retry_exhausted_total{error_class} (Counter): Requests that used every attempt
//
// Cache Metrics (pkg/cache):
//   - catalog_cache_hits_total, catalog_cache_misses_total, catalog_cache_stores_total (Counter)
//   - catalog_cache_errors_total{operation} (Counter)
//   - catalog_304_responses_total (Counter): 304 Not Modified responses
//   - catalog_conditional_requests_total (Counter): Requests sent with validators
//
// Quota Metrics (pkg/ratelimit):
//   - catalog_quota_remaining (Gauge): Requests left in the backend's window
//   - catalog_quota_blocks_total (Counter): Requests refused at a critical quota
//   - catalog_quota_throttles_total (Counter): Requests delayed at a low quota
//
// Example Prometheus Queries:
//
//   # Page cache hit rate
//   sum(rate(search_page_cache_total{result="hit"}[5m])) /
//   sum(rate(search_page_cache_total{result=~"hit|miss"}[5m]))
//
//   # Share of fetches superseded before they finished
//   rate(search_stale_completions_total[5m]) / sum(rate(search_fetches_total[5m]))
//
//   # P95 page fetch latency
//   histogram_quantile(0.95, rate(search_fetch_duration_seconds_bucket{kind="page"}[5m]))
