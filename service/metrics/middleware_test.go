package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware_RecordsStatusClass(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	handler := HTTPMetricsMiddleware(m, "/api/transactions")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/transactions", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/api/transactions", "GET", "5xx")))
}

func TestHTTPMetricsMiddleware_NilMetricsPassesThrough(t *testing.T) {
	called := false
	handler := HTTPMetricsMiddleware(nil, "/health")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.True(t, called)
}

func TestResponseWriter_FlushDelegates(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	w.Flush()
	assert.True(t, rec.Flushed)
}

func TestStatusCodeToString(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		301: "3xx",
		404: "4xx",
		503: "5xx",
		99:  "unknown",
	}
	for code, want := range tests {
		assert.Equal(t, want, statusCodeToString(code), "code %d", code)
	}
}
