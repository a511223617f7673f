// Package metrics defines the Prometheus collectors for the API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	AuthEvents       *prometheus.CounterVec
	RateLimited      *prometheus.CounterVec
	ResetCodesPurged prometheus.Counter

	registry *prometheus.Registry
}

// New creates the collectors on a private registry, along with the
// standard Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogapi_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blogapi_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogapi_auth_events_total",
				Help: "Authentication events by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		RateLimited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogapi_rate_limited_total",
				Help: "Requests rejected by the rate limiter by route",
			},
			[]string{"route"},
		),
		ResetCodesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blogapi_reset_codes_purged_total",
			Help: "Expired password reset codes removed by maintenance",
		}),
		registry: reg,
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.AuthEvents, m.RateLimited, m.ResetCodesPurged)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) AuthEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.AuthEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) RateLimitHit(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}

func (m *Metrics) ResetCodesRemoved(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ResetCodesPurged.Add(float64(n))
}
