// Package metrics exposes Prometheus counters for the admission, auth and
// submission flows. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autoscripty"

// Metrics holds the application collectors and the registry they live in
type Metrics struct {
	registry *prometheus.Registry

	admissions      *prometheus.CounterVec
	authOperations  *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates a Metrics with its own registry, including Go runtime and
// process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Access middleware decisions by outcome",
		}, []string{"decision"}),

		authOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Sign-up, sign-in and sign-out attempts by outcome",
		}, []string{"operation", "outcome"}),

		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "script_submissions_total",
			Help:      "Script submissions by outcome",
		}, []string{"outcome"}),

		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_refreshes_total",
			Help:      "Provider session refreshes attempted by the access middleware",
		}, []string{"outcome"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Registry returns the registry backing m
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// AccessDecision counts one middleware decision
func (m *Metrics) AccessDecision(decision string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(decision).Inc()
}

// AuthOperation counts one auth attempt
func (m *Metrics) AuthOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.authOperations.WithLabelValues(operation, outcome).Inc()
}

// Submission counts one script submission
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// SessionRefresh counts one refresh attempt
func (m *Metrics) SessionRefresh(outcome string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
}

// ObserveRequest records the duration of one HTTP request
func (m *Metrics) ObserveRequest(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
