// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file instruments HTTP traffic with Prometheus: request counts,
// latency, in-flight concurrency, and response sizes. The path label is
// the registered Gin route (e.g. /api/v1/nudges/:id) rather than the raw
// URL, so cardinality stays bounded; unmatched requests fall back to the
// raw path. Repository-level collectors (cache hits, retries, swept
// entries) live in internal/metrics — this file covers only the transport
// edge.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// respSizeBuckets spans typical JSON API payloads, from small error
// envelopes up to multi-megabyte list pages.
var respSizeBuckets = []float64{
	200, 500, 1 << 10, 2 << 10, 5 << 10, // 200B..5KiB
	10 << 10, 25 << 10, 50 << 10, // 10..50KiB
	100 << 10, 250 << 10, 500 << 10, // 100..500KiB
	1 << 20, 2 << 20, 5 << 20, // 1..5MiB
}

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration by method and route path. The
	// status label is omitted to keep histogram cardinality lower.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of currently processing requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// httpRespSize captures response sizes by method and route path.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses in bytes.",
			Buckets: respSizeBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize)
}

// routeOf returns the matched route pattern for labeling, or the raw URL
// path when no route matched (404s, method mismatches).
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// Metrics returns a Gin middleware that records Prometheus series for
// every request:
//
//   - http_requests_total(method, path, status), incremented per request
//   - http_request_duration_seconds(method, path), observed on completion
//   - http_requests_inflight, held high while the handler runs
//   - http_response_size_bytes(method, path), observed with bytes written;
//     handlers reporting an unknown size (-1, e.g. hijacked or streaming
//     connections) are skipped
//
// Install it before the routes and expose the scrape endpoint separately:
//
//	r.Use(middleware.Metrics())
//	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		method := c.Request.Method
		path := routeOf(c)

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
