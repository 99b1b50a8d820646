package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/motor-valuation/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("motors", []float64{10, 1}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/nonstandard-items", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/nonstandard-items"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/nonstandard-items", "201")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("motors", nil, registry)
	second := obs.NewHTTPMetrics("motors", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 25.5}, obs.ParseBucketsCSV("5, x, -1, 25.5,"))
	require.Nil(t, obs.ParseBucketsCSV("  "))
}

func TestDomainMetricHelpersAreNilSafe(t *testing.T) {
	require.NotPanics(t, func() {
		obs.IncPriceLogAppended("")
		obs.AddUnknownModes(2)
	})
}

func TestDomainMetricsRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("motors", registry)
	obs.IncPriceLogAppended("Absolute Amount")
	require.Equal(t, 1.0, testutil.ToFloat64(obs.PriceLogAppendedTotal.WithLabelValues("Absolute Amount")))
}
