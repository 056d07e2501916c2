package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the reporting gateway.
type Metrics struct {
	// Upstream report fetches
	ReportFetches *prometheus.CounterVec
	FetchLatency  *prometheus.HistogramVec
	AuthFailures  *prometheus.CounterVec

	// Token relay
	TokenCaptures prometheus.Counter
	TokenWaits    *prometheus.CounterVec

	// Exports
	CSVBundles prometheus.Counter

	// Trends
	TrendRequests *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter

	// System metrics
	DBConnections *prometheus.GaugeVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// DefaultMetrics is the global metrics instance
var DefaultMetrics *Metrics

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		ReportFetches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "report_fetches_total",
				Help:      "Upstream conversion-report fetches",
			},
			[]string{"status", "aid"},
		),
		FetchLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_latency_seconds",
				Help:      "Upstream fetch latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"status"},
		),
		AuthFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Upstream fetches rejected for credential reasons",
			},
			[]string{"aid"},
		),

		TokenCaptures: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_captures_total",
				Help:      "Bearer tokens captured from intercepted requests",
			},
		),
		TokenWaits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_waits_total",
				Help:      "Token wait outcomes",
			},
			[]string{"outcome"}, // served, timeout
		),

		CSVBundles: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "csv_bundles_total",
				Help:      "CSV bundles built",
			},
		),

		TrendRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trend_requests_total",
				Help:      "Trend builds by cadence",
			},
			[]string{"cadence", "status"},
		),
		CacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trends_cache_hits_total",
				Help:      "Trend period reports served from cache",
			},
		),
		CacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "trends_cache_misses_total",
				Help:      "Trend period reports fetched upstream",
			},
		),

		DBConnections: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"}, // idle, in_use, total
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint", "ip"},
		),
	}

	DefaultMetrics = m
	return m
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordReportFetch records one upstream fetch and its latency.
func (m *Metrics) RecordReportFetch(status, aid string, latency time.Duration) {
	m.ReportFetches.WithLabelValues(status, aid).Inc()
	m.FetchLatency.WithLabelValues(status).Observe(latency.Seconds())
}

// RecordAuthFailure records an upstream credential rejection.
func (m *Metrics) RecordAuthFailure(aid string) {
	m.AuthFailures.WithLabelValues(aid).Inc()
}

// RecordTokenCapture records one captured bearer token.
func (m *Metrics) RecordTokenCapture() {
	m.TokenCaptures.Inc()
}

// RecordTokenWait records a token wait outcome.
func (m *Metrics) RecordTokenWait(served bool) {
	outcome := "timeout"
	if served {
		outcome = "served"
	}
	m.TokenWaits.WithLabelValues(outcome).Inc()
}

// RecordCSVBundle records one built CSV bundle.
func (m *Metrics) RecordCSVBundle() {
	m.CSVBundles.Inc()
}

// RecordTrendRequest records one trend build.
func (m *Metrics) RecordTrendRequest(cadence, status string) {
	m.TrendRequests.WithLabelValues(cadence, status).Inc()
}

// RecordTrendsCache records a trend period cache outcome.
func (m *Metrics) RecordTrendsCache(hit bool) {
	if hit {
		m.CacheHits.Inc()
	} else {
		m.CacheMisses.Inc()
	}
}

// UpdateDBStats updates database connection metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint, ip string) {
	m.RateLimitHits.WithLabelValues(endpoint, ip).Inc()
}
