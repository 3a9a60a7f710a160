package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCacheMetrics(t *testing.T) {
	t.Run("CacheFetches", func(t *testing.T) {
		before := testutil.ToFloat64(CacheFetches.WithLabelValues("metrics_test", ResultHit))
		CacheFetches.WithLabelValues("metrics_test", ResultHit).Inc()
		CacheFetches.WithLabelValues("metrics_test", ResultHit).Inc()
		assert.Equal(t, before+2, testutil.ToFloat64(CacheFetches.WithLabelValues("metrics_test", ResultHit)))
	})

	t.Run("CacheLastSuccess", func(t *testing.T) {
		CacheLastSuccess.WithLabelValues("metrics_test").Set(1700000000)
		assert.Equal(t, float64(1700000000), testutil.ToFloat64(CacheLastSuccess.WithLabelValues("metrics_test")))
	})

	t.Run("CacheRefreshDuration", func(t *testing.T) {
		assert.NotPanics(t, func() {
			CacheRefreshDuration.WithLabelValues("metrics_test").Observe(0.25)
		})
	})

	t.Run("RefreshTicksSkipped", func(t *testing.T) {
		before := testutil.ToFloat64(RefreshTicksSkipped)
		RefreshTicksSkipped.Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(RefreshTicksSkipped))
	})

	t.Run("PeersDiscovered", func(t *testing.T) {
		PeersDiscovered.WithLabelValues("net_info").Set(12)
		assert.Equal(t, float64(12), testutil.ToFloat64(PeersDiscovered.WithLabelValues("net_info")))
	})
}

func TestMetricsRegistration(t *testing.T) {
	collectors := []prometheus.Collector{
		EndpointResponses,
		EndpointDuration,
		CacheFetches,
		CacheLastSuccess,
		CacheRefreshDuration,
		RefreshTicksSkipped,
		GeolocationLookups,
		PeersDiscovered,
	}

	for _, c := range collectors {
		// Registering an already registered collector must fail with
		// AlreadyRegisteredError, proving promauto registered it.
		err := prometheus.Register(c)
		var are prometheus.AlreadyRegisteredError
		assert.ErrorAs(t, err, &are)
	}
}

func TestMiddleware(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}), func(r *http.Request) string { return r.URL.Path })

	okBefore := testutil.ToFloat64(EndpointResponses.WithLabelValues("/ok", "200"))
	missBefore := testutil.ToFloat64(EndpointResponses.WithLabelValues("/missing", "404"))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/ok", "200")))
	assert.Equal(t, missBefore+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/missing", "404")))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(EndpointDuration), 1)
}
