// Package metrics exposes the Prometheus registry shared by the feed packages.
// All metrics are defined in their respective packages (source, cache, enrich,
// pagination, server) to maintain modularity and avoid circular dependencies.
//
// This package provides the scrape handler and a reference for all available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the feed packages.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the HTTP handler serving every registered metric.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Upstream Metrics (pkg/source):
//   - feed_upstream_requests_total{operation, status} (Counter): Upstream requests by operation and HTTP status
//   - feed_upstream_request_duration_seconds{operation} (Histogram): Upstream request duration
//   - feed_upstream_errors_total{class} (Counter): Upstream errors by class (client, server, network, decode)
//
// Cache Metrics (pkg/cache):
//   - feed_cache_hits_total{layer} (Counter): Owner cache hits by layer (memory, redis)
//   - feed_cache_misses_total{layer} (Counter): Owner cache misses by layer
//   - feed_cache_errors_total{operation} (Counter): Cache operation errors
//
// Enrichment Metrics (pkg/enrich):
//   - feed_enrich_duration_seconds (Histogram): Fan-out and merge duration per page
//   - feed_enrich_records_total (Counter): Enriched records emitted
//   - feed_enrich_failures_total{dependency} (Counter): Records given a safe default, by dependency (media, owner)
//
// Pagination Metrics (pkg/pagination):
//   - feed_pages_loaded_total (Counter): Pages appended by pagination sessions
//   - feed_page_fetch_failures_total (Counter): Base page fetches that failed
//
// HTTP Metrics (pkg/server):
//   - feed_http_requests_total{method, route, status} (Counter): Requests served
//   - feed_http_request_duration_seconds{method, route} (Histogram): Request duration
//
// Example Prometheus Queries:
//
//   # Owner Cache Hit Rate
//   sum(rate(feed_cache_hits_total[5m])) /
//   (sum(rate(feed_cache_hits_total[5m])) + sum(rate(feed_cache_misses_total[5m])))
//
//   # Media Degradation Rate
//   rate(feed_enrich_failures_total{dependency="media"}[5m]) / rate(feed_enrich_records_total[5m])
//
//   # Upstream Error Rate
//   rate(feed_upstream_errors_total[5m])
//
//   # P95 Enrichment Latency
//   histogram_quantile(0.95, rate(feed_enrich_duration_seconds_bucket[5m]))
