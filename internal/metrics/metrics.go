package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanodoc_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nanodoc_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	// RateLimited counts requests rejected with 429.
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nanodoc_http_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
	// FilterErrors counts $filter, $orderby and $select compile failures.
	FilterErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanodoc_filter_errors_total",
			Help: "Total number of query parameters that failed to compile",
		},
		[]string{"param"},
	)
	// StoreOperations counts document store operations.
	StoreOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nanodoc_store_operations_total",
			Help: "Total number of document store operations",
		},
		[]string{"operation", "status"},
	)
	// FlushDuration is the time spent writing snapshots and resetting the WAL.
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nanodoc_flush_duration_seconds",
			Help:    "Snapshot flush latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	// Documents is the live document count per collection.
	Documents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nanodoc_documents",
			Help: "Number of documents per collection",
		},
		[]string{"collection"},
	)
)

// Status maps an error to the status label of StoreOperations.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
