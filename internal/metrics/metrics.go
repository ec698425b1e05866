// Package metrics exposes prometheus instrumentation for the tracking and
// broadcast paths.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A fresh set is created per process
// (and per test) against its own registry so tests never collide.
type Metrics struct {
	registry *prometheus.Registry

	ClicksTracked  *prometheus.CounterVec
	ClicksRejected prometheus.Counter
	Subscribers    prometheus.GaugeFunc
}

// New creates and registers the service collectors. subscriberCount feeds
// the live-subscriber gauge, normally the broker's ClientCount.
func New(subscriberCount func() int) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ClicksTracked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linktally_clicks_tracked_total",
			Help: "Tracked clicks by destination.",
		}, []string{"destination"}),
		ClicksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linktally_clicks_rejected_total",
			Help: "Track requests rejected by allow-list validation.",
		}),
		Subscribers: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "linktally_dashboard_subscribers",
			Help: "Currently connected dashboard stream subscribers.",
		}, func() float64 {
			if subscriberCount == nil {
				return 0
			}
			return float64(subscriberCount())
		}),
	}

	registry.MustRegister(m.ClicksTracked, m.ClicksRejected, m.Subscribers)

	return m
}

// Handler returns the gin handler serving the prometheus text exposition.
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
