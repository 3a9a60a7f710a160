package api

import (
	"net/http"

	"github.com/knowable-run/chain-metrics-gateway/internal/cache"
	"github.com/knowable-run/chain-metrics-gateway/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthReporter exposes the last refresh outcome of every cached key.
type HealthReporter interface {
	Health() []cache.Health
}

// NewServer mounts the dispatcher, /metrics and /healthz. health may be nil.
func NewServer(d *Dispatcher, health HealthReporter) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		var entries []cache.Health
		if health != nil {
			entries = health.Health()
		}
		writeJSON(w, http.StatusOK, entries)
	})
	mux.Handle("/", d)
	return metrics.Middleware(mux, endpointLabel)
}

// endpointLabel keeps the endpoint label bounded to known paths.
func endpointLabel(r *http.Request) string {
	switch r.URL.Path {
	case "/metrics", "/healthz":
		return r.URL.Path
	}
	if route, ok := ParseRoute(r.URL.Path); ok {
		return route.Path()
	}
	return "unknown"
}
