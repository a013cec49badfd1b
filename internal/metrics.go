package internal

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook outcomes recorded by Metrics.IncWebhook.
const (
	OutcomeStored   = "stored"
	OutcomeSkipped  = "skipped"
	OutcomeFault    = "fault"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	webhooks      *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	published     *prometheus.CounterVec
	gatherer      prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registry gets a fresh private one.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githubevents_webhooks_total",
			Help: "Webhook deliveries by X-GitHub-Event and outcome.",
		}, []string{"event", "outcome"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githubevents_storage_errors_total",
			Help: "Failed storage operations.",
		}, []string{"op"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githubevents_publish_errors_total",
			Help: "Failed notification publishes by topic.",
		}, []string{"topic"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "githubevents_published_total",
			Help: "Notifications published by topic.",
		}, []string{"topic"}),
		gatherer: reg,
	}
	reg.MustRegister(
		m.webhooks,
		m.storageErrors,
		m.publishErrors,
		m.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// IncWebhook counts one delivery.
func (m *Metrics) IncWebhook(event, outcome string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "none"
	}
	m.webhooks.WithLabelValues(event, outcome).Inc()
}

// IncStorageError counts a failed storage operation.
func (m *Metrics) IncStorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(op).Inc()
}

// IncPublish counts a publish attempt for topic.
func (m *Metrics) IncPublish(topic string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishErrors.WithLabelValues(topic).Inc()
		return
	}
	m.published.WithLabelValues(topic).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Webhooks exposes the deliveries counter for assertions.
func (m *Metrics) Webhooks() *prometheus.CounterVec { return m.webhooks }

// StorageErrors exposes the storage error counter for assertions.
func (m *Metrics) StorageErrors() *prometheus.CounterVec { return m.storageErrors }

// PublishErrors exposes the publish error counter for assertions.
func (m *Metrics) PublishErrors() *prometheus.CounterVec { return m.publishErrors }
