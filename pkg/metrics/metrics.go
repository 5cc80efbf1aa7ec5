package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cache metrics
	CacheSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_cache_size_bytes",
			Help: "Current size of the in-memory content cache in bytes",
		},
	)

	CacheEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_cache_entries_total",
			Help: "Current number of entries held in the content cache",
		},
	)

	CacheInFlightTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_cache_inflight_total",
			Help: "Current number of CIDs with an outstanding single-flight fetch",
		},
	)

	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_evictions_total",
			Help: "Total number of cache entries evicted, by reason",
		},
		[]string{"reason"}, // lru | ttl | purge
	)

	// HTTP surface metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total number of HTTP requests served, by surface and status",
		},
		[]string{"surface", "status"}, // surface: public (the admin server records no requests here)
	)

	UpstreamFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gateway_upstream_fetch_duration_seconds",
			Help:    "Time taken to fetch content bytes from an upstream provider",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Discovery metrics
	DiscoveryPeersConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_discovery_peers_connected",
			Help: "Current number of connected discovery-overlay peers",
		},
	)

	DiscoveryBootstrapTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_discovery_bootstrap_total",
			Help: "Total number of Kademlia bootstrap attempts, by outcome",
		},
		[]string{"outcome"}, // ok | err
	)
)

func init() {
	prometheus.MustRegister(
		CacheSizeBytes,
		CacheEntriesTotal,
		CacheInFlightTotal,
		CacheEvictionsTotal,
		RequestsTotal,
		UpstreamFetchDuration,
		DiscoveryPeersConnected,
		DiscoveryBootstrapTotal,
	)
}

// Handler returns the Prometheus HTTP handler for the admin /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
