package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	qldbRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qldb_http_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	qldbRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qldb_http_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	qldbHTTPAppendsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qldb_http_appends_total",
		Help: "Total ledger records appended through the HTTP API.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		qldbRequestsTotal.WithLabelValues(method, path, status).Inc()
		qldbRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLedgerAppend records a ledger append made through the API.
func RecordLedgerAppend() {
	qldbHTTPAppendsTotal.Inc()
}
