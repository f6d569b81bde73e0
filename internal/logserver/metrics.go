package logserver

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type metrics struct {
	registry  *prometheus.Registry
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	published prometheus.Counter
	rowsRead  prometheus.Counter
	rejected  *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cipherlog",
			Subsystem: "logd",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cipherlog",
			Subsystem: "logd",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cipherlog",
			Subsystem: "logd",
			Name:      "writes_rejected_total",
			Help:      "Publish and register requests refused by signature checks.",
		}, []string{"route", "reason"}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cipherlog",
			Subsystem: "logd",
			Name:      "records_published_total",
			Help:      "Records written into publisher slots.",
		}),
		rowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cipherlog",
			Subsystem: "logd",
			Name:      "rows_read_total",
			Help:      "Rows returned by slot reads.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.latency,
		m.published,
		m.rowsRead,
		m.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// middleware records request counts and latency per matched route.
func (m *metrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}
