package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache fetch results used as the "result" label of CacheFetches.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultRefresh = "refresh"
	ResultError   = "error"
)

var (
	EndpointResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "endpoint_responses_total",
		Help: "The total number of endpoint responses",
	}, []string{"endpoint", "status_code"})

	EndpointDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "endpoint_duration_seconds",
		Help:    "Time to answer a request per endpoint",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	CacheFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_fetch_total",
		Help: "Cache fetches by key and result (hit, miss, refresh, error)",
	}, []string{"key", "result"})

	// CacheLastSuccess is the liveness signal for each cached key. A value
	// that stops advancing means the key is being served stale.
	CacheLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cache_last_success_timestamp_seconds",
		Help: "Unix time of the last successful producer run per cache key",
	}, []string{"key"})

	CacheRefreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cache_refresh_duration_seconds",
		Help:    "Duration of producer runs per cache key",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"key"})

	RefreshTicksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refresh_ticks_skipped_total",
		Help: "Refresh ticks skipped because the previous tick was still running",
	})

	GeolocationLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "geolocation_lookups_total",
		Help: "Geolocation lookups by result (ok, error, cached)",
	}, []string{"result"})

	PeersDiscovered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peers_discovered",
		Help: "Peer records parsed from each upstream source in the last aggregation",
	}, []string{"source"})
)
