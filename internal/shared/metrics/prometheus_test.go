package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/families/{familyID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/families/{familyID}", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/families/abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/families/def", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/families/{familyID}", "200"))

	assert.Equal(t, 2.0, after-before)
}

func TestRecordFallback(t *testing.T) {
	before := testutil.ToFloat64(mlFallbacks.WithLabelValues("score", "timeout"))
	RecordFallback("score", "timeout")
	assert.Equal(t, before+1, testutil.ToFloat64(mlFallbacks.WithLabelValues("score", "timeout")))
}

func TestRecordInsightRun(t *testing.T) {
	RecordInsightRun(true, 2, 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(resourceShortages))
}
