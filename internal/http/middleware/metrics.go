package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Labels are method, registered route and status, which keeps cardinality
// bounded. WebSocket upgrades are hijacked, so their duration is the whole
// session and is tracked separately from request latency.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of non-upgraded HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests, including open WebSocket sessions.",
		},
	)

	wsSessionDur = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_websocket_session_seconds",
			Help:    "Lifetime of upgraded WebSocket sessions in seconds.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, wsSessionDur)
}

// Metrics instruments requests with Prometheus. The path label is the
// registered route, or the raw path when nothing matched.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		httpReqs.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()

		dur := time.Since(start).Seconds()
		if status == http.StatusSwitchingProtocols {
			wsSessionDur.WithLabelValues(path).Observe(dur)
			return
		}
		httpLat.WithLabelValues(c.Request.Method, path).Observe(dur)
	}
}
