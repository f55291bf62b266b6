// Package metrics declares the Prometheus collectors exported on /metrics
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novasettle_http_requests_total",
		Help: "Total HTTP requests processed, labeled by route and status code",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "novasettle_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})

	// ListingTransitions counts lifecycle transitions by target status and outcome
	ListingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novasettle_listing_transitions_total",
		Help: "Listing lifecycle transitions, labeled by target status and result",
	}, []string{"to", "result"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "novasettle_events_dropped_total",
		Help: "Listing events that could not be delivered",
	}, []string{"target"})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "novasettle_event_subscribers",
		Help: "Currently connected listing event subscribers",
	})
)

// Middleware records request count and latency per matched route
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
