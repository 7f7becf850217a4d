// Package metrics holds the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the custom registry every collector below is registered on.
var Registry = prometheus.NewRegistry()

// FallbackReads counts list calls served by the local store after the remote one failed.
var FallbackReads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "seroest_fallback_reads_total",
		Help: "List calls served by the local store after a remote failure",
	},
	[]string{"entity"},
)

// StoreErrors counts failed backend calls.
var StoreErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "seroest_store_errors_total",
		Help: "Failed backend calls",
	},
	[]string{"backend", "op"},
)

// Logins counts authentication attempts by outcome.
var Logins = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "seroest_logins_total",
		Help: "Authentication attempts",
	},
	[]string{"outcome"},
)

// HTTPRequests counts API requests.
var HTTPRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "seroest_http_requests_total",
		Help: "HTTP requests handled",
	},
	[]string{"method", "route", "code"},
)

// HTTPDuration observes API request latency.
var HTTPDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "seroest_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route"},
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		FallbackReads,
		StoreErrors,
		Logins,
		HTTPRequests,
		HTTPDuration,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
