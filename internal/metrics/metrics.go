// Package metrics exposes the license server's prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "license_server"

// Metrics holds the collectors recorded by the services. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	webhookEvents  *prometheus.CounterVec
	licenses       *prometheus.CounterVec
	validations    *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	notifyQueueLen prometheus.Gauge
}

// New creates a registry with the process and Go collectors plus the
// license server's own metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Purchase provider webhook events by outcome.",
		}, []string{"outcome"}),
		licenses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licenses_issued_total",
			Help:      "Licenses minted and persisted, by codec.",
		}, []string{"codec"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "License validation decisions by result and internal reason.",
		}, []string{"result", "reason"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "License email notifications by outcome.",
		}, []string{"outcome"}),
		notifyQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notify_queue_length",
			Help:      "Notifications waiting for a worker.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.webhookEvents,
		m.licenses,
		m.validations,
		m.notifications,
		m.notifyQueueLen,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LicenseIssued(codec string) {
	if m == nil {
		return
	}
	m.licenses.WithLabelValues(codec).Inc()
}

func (m *Metrics) Validation(valid bool, reason string) {
	if m == nil {
		return
	}
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.validations.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) NotifyQueueLength(n int) {
	if m == nil {
		return
	}
	m.notifyQueueLen.Set(float64(n))
}
