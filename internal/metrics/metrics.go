// Package metrics provides Prometheus instrumentation for Kestrel.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path pattern, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ScoresTotal counts scored transactions by risk level and model version.
	ScoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "scores_total",
			Help:      "Total transactions scored by risk level and model version.",
		},
		[]string{"level", "model"},
	)

	// ScoringFailuresTotal counts scoring requests that returned an error.
	ScoringFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "scoring_failures_total",
			Help:      "Total scoring requests that failed.",
		},
	)

	// ScoringDuration observes end-to-end pipeline latency.
	ScoringDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "scoring_duration_seconds",
			Help:      "End-to-end scoring pipeline duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// ScoreDistribution observes the distribution of computed score values.
	ScoreDistribution = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "score_distribution",
			Help:      "Distribution of computed risk score values.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	// LatencyBudgetViolationsTotal counts scores that exceeded the soft
	// latency budget.
	LatencyBudgetViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "latency_budget_violations_total",
			Help:      "Total scoring requests that exceeded the latency budget.",
		},
	)

	// CacheHitsTotal counts score cache hits.
	CacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "score_cache_hits_total",
			Help:      "Total score cache hits.",
		},
	)

	// CacheMissesTotal counts score cache misses.
	CacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "score_cache_misses_total",
			Help:      "Total score cache misses.",
		},
	)

	// AlertsRaisedTotal counts raised fraud alerts.
	AlertsRaisedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "alerts_raised_total",
			Help:      "Total fraud alerts raised.",
		},
	)

	// FeatureGroupDegradedTotal counts aggregate groups that fell back to
	// default values.
	FeatureGroupDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "feature_group_degraded_total",
			Help:      "Total feature aggregate groups degraded to defaults.",
		},
		[]string{"group"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ScoresTotal,
		ScoringFailuresTotal,
		ScoringDuration,
		ScoreDistribution,
		LatencyBudgetViolationsTotal,
		CacheHitsTotal,
		CacheMissesTotal,
		AlertsRaisedTotal,
		FeatureGroupDegradedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func StatusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
