// Package metrics exposes the site's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "folio"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	CarouselIntents     *prometheus.CounterVec
	CarouselRejected    *prometheus.CounterVec
	CarouselTransitions prometheus.Counter
	ContactSubmissions  *prometheus.CounterVec
	ActiveSessions      prometheus.Gauge
	SessionsEvicted     *prometheus.CounterVec
	Visits              prometheus.Counter
}

// New registers a fresh set of collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CarouselIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "carousel_intents_total",
			Help: "Carousel intents handled, by intent.",
		}, []string{"intent"}),
		CarouselRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "carousel_rejected_total",
			Help: "Carousel intents rejected as invalid, by intent.",
		}, []string{"intent"}),
		CarouselTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "carousel_transitions_total",
			Help: "Carousel state changes from requests and auto-advance.",
		}),
		ContactSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "contact_submissions_total",
			Help: "Contact form submissions, by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_sessions",
			Help: "Visitor sessions currently held in memory.",
		}),
		SessionsEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sessions_evicted_total",
			Help: "Sessions closed by the registry, by reason.",
		}, []string{"reason"}),
		Visits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "visits_total",
			Help: "Tracked page views.",
		}),
	}
	m.registry.MustRegister(
		m.CarouselIntents, m.CarouselRejected, m.CarouselTransitions,
		m.ContactSubmissions, m.ActiveSessions, m.SessionsEvicted, m.Visits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
