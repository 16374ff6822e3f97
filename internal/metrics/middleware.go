package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var bucketsConfig = []float64{5, 25, 100, 300, 1000, 5000}

var requestsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Number of HTTP requests partitioned by status code, method and route.",
	}, []string{"code", "method", "path"})

var latencyMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_milliseconds",
		Help:      "Time spent on the request partitioned by status code, method and route.",
		Buckets:   bucketsConfig,
	}, []string{"code", "method", "path"})

// Middleware records request counts and latency by route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := strconv.Itoa(c.Writer.Status())
		requestsMetric.WithLabelValues(code, c.Request.Method, path).Inc()
		latencyMetric.WithLabelValues(code, c.Request.Method, path).
			Observe(float64(time.Since(start).Milliseconds()))
	}
}
