package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Scoring metrics
	scoresComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scores_computed_total",
			Help: "Vulnerability scores produced, by source",
		},
		[]string{"source"},
	)

	mlFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ml_fallbacks_total",
			Help: "Calls to the ML scoring service that fell back to the local formula",
		},
		[]string{"operation", "reason"},
	)

	mlRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ml_request_duration_seconds",
			Help:    "ML scoring service request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// Insight metrics
	insightRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_runs_total",
			Help: "Global insight computations, by result",
		},
		[]string{"result"},
	)

	insightRecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_records_skipped_total",
			Help: "Family records skipped during insight computation",
		},
	)

	resourceShortages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resource_shortages",
			Help: "Resources at or below their minimum threshold at the last insight run",
		},
	)

	// Domain metrics
	familiesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "families_created_total",
			Help: "Total number of family records created",
		},
	)

	aidDistributions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aid_distributions_total",
			Help: "Aid items distributed during visits, by aid type",
		},
		[]string{"type"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of acquired database connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern labels requests by their chi route template so IDs in the
// path do not explode label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// RecordScore records a produced score by source ("ml" or "local")
func RecordScore(source string) {
	scoresComputed.WithLabelValues(source).Inc()
}

// RecordFallback records an ML call that degraded to local scoring
func RecordFallback(operation, reason string) {
	mlFallbacks.WithLabelValues(operation, reason).Inc()
}

// RecordMLRequest records an ML service round trip
func RecordMLRequest(operation string, duration time.Duration) {
	mlRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordInsightRun records the outcome of a global insight computation
func RecordInsightRun(ok bool, skipped, shortages int) {
	result := "ok"
	if !ok {
		result = "error"
	}
	insightRuns.WithLabelValues(result).Inc()
	if skipped > 0 {
		insightRecordsSkipped.Add(float64(skipped))
	}
	if ok {
		resourceShortages.Set(float64(shortages))
	}
}

// RecordFamilyCreated records a family registration
func RecordFamilyCreated() {
	familiesCreated.Inc()
}

// RecordAidDistributed records one distributed aid item
func RecordAidDistributed(aidType string) {
	aidDistributions.WithLabelValues(aidType).Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordDBConnections records acquired database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}
