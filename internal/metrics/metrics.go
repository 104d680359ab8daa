// Package metrics exposes Prometheus collectors for the hot post collector.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlCyclesTotal          *prometheus.CounterVec
	postsFetchedTotal         prometheus.Counter
	postsSavedTotal           prometheus.Counter
	rowsSkippedTotal          *prometheus.CounterVec
	countParseFallbacksTotal  *prometheus.CounterVec
	storeWriteFailuresTotal   prometheus.Counter
	crawlDurationSeconds      prometheus.Histogram
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDurationSecond *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotpost_crawl_cycles_total",
				Help: "Total number of crawl cycles, labeled by outcome.",
			},
			[]string{"status"},
		)

		postsFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hotpost_posts_fetched_total",
				Help: "Total number of candidate posts extracted from listing pages.",
			},
		)

		postsSavedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hotpost_posts_saved_total",
				Help: "Total number of posts newly stored.",
			},
		)

		rowsSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotpost_rows_skipped_total",
				Help: "Listing rows that produced no candidate, labeled by reason.",
			},
			[]string{"reason"},
		)

		countParseFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hotpost_count_parse_fallbacks_total",
				Help: "View or comment counts that could not be parsed and were stored as 0.",
			},
			[]string{"field"},
		)

		storeWriteFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "hotpost_store_write_failures_total",
				Help: "Candidate posts whose insert failed and was skipped.",
			},
		)

		crawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hotpost_crawl_duration_seconds",
				Help:    "Histogram of crawl cycle durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSecond = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CycleOutcome carries what one crawl cycle observed
type CycleOutcome struct {
	Status         string
	Fetched        int
	Saved          int
	StoreFailures  int
	Skipped        map[string]int
	CountFallbacks map[string]int
	Duration       time.Duration
}

// ObserveCycle records a finished crawl cycle.
func ObserveCycle(o CycleOutcome) {
	Init()
	crawlCyclesTotal.WithLabelValues(o.Status).Inc()
	postsFetchedTotal.Add(float64(o.Fetched))
	postsSavedTotal.Add(float64(o.Saved))
	storeWriteFailuresTotal.Add(float64(o.StoreFailures))
	for reason, n := range o.Skipped {
		rowsSkippedTotal.WithLabelValues(reason).Add(float64(n))
	}
	for field, n := range o.CountFallbacks {
		countParseFallbacksTotal.WithLabelValues(field).Add(float64(n))
	}
	crawlDurationSeconds.Observe(o.Duration.Seconds())
}

// ObserveHTTPRequest records an API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSecond.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		ObserveHTTPRequest(r.Method, route, status, time.Since(start))
	})
}
