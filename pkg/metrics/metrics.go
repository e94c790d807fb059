// Package metrics provides Prometheus metrics for the price feed core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchesTotal is a counter of adapter fetch attempts by outcome.
	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fetches_total",
			Help: "Total number of adapter fetch attempts",
		},
		[]string{"source", "symbol", "outcome"},
	)

	// FetchDuration is a histogram of adapter fetch latencies.
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feed_fetch_duration_seconds",
			Help:    "Latency of adapter fetch calls",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"source"},
	)

	// CacheRequestsTotal counts price cache lookups by result.
	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_requests_total",
			Help: "Total number of price cache lookups",
		},
		[]string{"result"},
	)

	// FallbacksTotal counts fallback-source activations.
	FallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_fallbacks_total",
			Help: "Total number of times a fallback source served a price",
		},
		[]string{"symbol"},
	)

	// AggregationsTotal counts multi-source aggregation attempts.
	AggregationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_aggregations_total",
			Help: "Total number of multi-source aggregations",
		},
		[]string{"symbol", "outcome"},
	)

	// AggregationDuration is a histogram of aggregation fan-out duration.
	AggregationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_aggregation_duration_seconds",
			Help:    "Duration of multi-source aggregation fan-outs",
			Buckets: prometheus.DefBuckets,
		},
	)

	// QualityScore is a gauge of the latest overall quality score per symbol.
	QualityScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_quality_score",
			Help: "Latest overall quality score for a symbol (0-100)",
		},
		[]string{"symbol"},
	)

	// PriceStalenessSeconds is a gauge of the latest evaluated sample age.
	PriceStalenessSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_price_staleness_seconds",
			Help: "Age of the latest evaluated price sample for a symbol",
		},
		[]string{"symbol"},
	)

	// FeedStatus is a gauge encoding the feed state machine per symbol
	// (0=unknown, 1=healthy, 2=degraded, 3=failed).
	FeedStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_status",
			Help: "Feed status per symbol (0=unknown, 1=healthy, 2=degraded, 3=failed)",
		},
		[]string{"symbol"},
	)

	// SourceHealth is a gauge of adapter reachability from health checks.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feed_source_health",
			Help: "Health status of price sources (1=healthy, 0=unhealthy)",
		},
		[]string{"source"},
	)

	// SystemHealthPercentage is a gauge of the share of healthy feeds.
	SystemHealthPercentage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feed_system_health_percentage",
			Help: "Percentage of tracked feeds currently healthy",
		},
	)

	// HTTPRequestsTotal is a counter of total HTTP requests.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// HTTPRequestDuration is a histogram of HTTP request latencies.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"endpoint"},
	)
)

// Init registers all collectors with the default Prometheus registry.
func Init() {
	prometheus.MustRegister(
		FetchesTotal,
		FetchDuration,
		CacheRequestsTotal,
		FallbacksTotal,
		AggregationsTotal,
		AggregationDuration,
		QualityScore,
		PriceStalenessSeconds,
		FeedStatus,
		SourceHealth,
		SystemHealthPercentage,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// RecordFetch records one adapter fetch attempt.
func RecordFetch(source, symbol, outcome string, duration time.Duration) {
	FetchesTotal.WithLabelValues(source, symbol, outcome).Inc()
	FetchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCacheLookup records a price cache lookup.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequestsTotal.WithLabelValues(result).Inc()
}

// RecordFallback records a price served by a fallback source.
func RecordFallback(symbol string) {
	FallbacksTotal.WithLabelValues(symbol).Inc()
}

// RecordAggregation records a multi-source aggregation.
func RecordAggregation(symbol, outcome string, duration time.Duration) {
	AggregationsTotal.WithLabelValues(symbol, outcome).Inc()
	AggregationDuration.Observe(duration.Seconds())
}

// RecordQuality records the latest quality evaluation for a symbol.
func RecordQuality(symbol string, overallScore int, stalenessSeconds float64) {
	QualityScore.WithLabelValues(symbol).Set(float64(overallScore))
	PriceStalenessSeconds.WithLabelValues(symbol).Set(stalenessSeconds)
}

// RecordFeedStatus records the feed state machine position for a symbol.
func RecordFeedStatus(symbol string, status float64) {
	FeedStatus.WithLabelValues(symbol).Set(status)
}

// RecordSourceHealth records the reachability of a source.
func RecordSourceHealth(source string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source).Set(val)
}

// RecordSystemHealth records the share of healthy feeds.
func RecordSystemHealth(percentage float64) {
	SystemHealthPercentage.Set(percentage)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}
