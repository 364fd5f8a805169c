// Package telemetry exposes Prometheus collectors for the review crawler.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal      *prometheus.CounterVec
	reviewsAcceptedTotal   *prometheus.CounterVec
	upstreamRetriesTotal   prometheus.Counter
	rateLimitDelaysSeconds prometheus.Histogram
	rowsInsertedTotal      *prometheus.CounterVec
	targetsCompletedTotal  prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewcrawler_pages_fetched_total",
				Help: "Total review pages fetched, labeled by star filter and outcome.",
			},
			[]string{"star", "outcome"},
		)

		reviewsAcceptedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewcrawler_reviews_accepted_total",
				Help: "Total reviews accepted against a quota, labeled by star bucket.",
			},
			[]string{"star"},
		)

		upstreamRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewcrawler_upstream_retries_total",
				Help: "Total retry attempts against the upstream API.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reviewcrawler_rate_limit_delay_seconds",
				Help:    "Delay introduced by the global request gate.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		)

		rowsInsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reviewcrawler_rows_inserted_total",
				Help: "Total rows newly inserted into the storage sink, labeled by group.",
			},
			[]string{"group"},
		)

		targetsCompletedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "reviewcrawler_targets_completed_total",
				Help: "Total targets that reached their quota or exhausted upstream.",
			},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetched records one page fetch attempt for a star filter.
func ObservePageFetched(star int, outcome string) {
	Init()
	pagesFetchedTotal.WithLabelValues(strconv.Itoa(star), outcome).Inc()
}

// ObserveReviewsAccepted records newly accepted reviews for a star bucket.
func ObserveReviewsAccepted(star, count int) {
	if count <= 0 {
		return
	}
	Init()
	reviewsAcceptedTotal.WithLabelValues(strconv.Itoa(star)).Add(float64(count))
}

// ObserveRetry records one upstream retry attempt.
func ObserveRetry() {
	Init()
	upstreamRetriesTotal.Inc()
}

// ObserveRateLimitDelay records time spent waiting on the request gate.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaysSeconds.Observe(d.Seconds())
}

// ObserveRowsInserted records rows newly written to the sink for a group.
func ObserveRowsInserted(group string, count int) {
	if count <= 0 {
		return
	}
	Init()
	rowsInsertedTotal.WithLabelValues(group).Add(float64(count))
}

// ObserveTargetCompleted records one target reaching its terminal state.
func ObserveTargetCompleted() {
	Init()
	targetsCompletedTotal.Inc()
}
