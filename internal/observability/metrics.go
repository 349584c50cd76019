// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name when none is given.
const DefaultNamespace = "consumption_unit"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Contract metrics
	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	QueriesTotal      *prometheus.CounterVec
	LiveTokens        prometheus.Gauge

	// Audit metrics
	AuditEventsStored prometheus.Counter
	AuditErrors       prometheus.Counter

	// Stream metrics
	StreamClients prometheus.Gauge
	StreamDropped prometheus.Counter

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance registered on a fresh registry,
// together with the Go and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Contract metrics
		ExecutionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "executions_total",
			Help:      "Total number of executed messages by action and outcome",
		}, []string{"action", "outcome"}),
		ExecutionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "execution_duration_seconds",
			Help:      "Message execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		QueriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "queries_total",
			Help:      "Total number of queries by name and outcome",
		}, []string{"query", "outcome"}),
		LiveTokens: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "live_tokens",
			Help:      "Number of live tokens after the last mutation",
		}),

		// Audit metrics
		AuditEventsStored: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "events_stored_total",
			Help:      "Total number of audit events stored",
		}),
		AuditErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "errors_total",
			Help:      "Total number of failed audit event writes",
		}),

		// Stream metrics
		StreamClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Number of connected websocket clients",
		}),
		StreamDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_total",
			Help:      "Total number of events dropped for slow clients",
		}),

		// HTTP metrics
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordExecution records an executed message.
func (m *Metrics) RecordExecution(action string, d time.Duration, err error) {
	m.ExecutionsTotal.WithLabelValues(action, outcome(err)).Inc()
	m.ExecutionDuration.WithLabelValues(action).Observe(d.Seconds())
}

// RecordQuery records a query.
func (m *Metrics) RecordQuery(query string, err error) {
	m.QueriesTotal.WithLabelValues(query, outcome(err)).Inc()
}

// SetLiveTokens updates the live tokens gauge.
func (m *Metrics) SetLiveTokens(n uint64) {
	m.LiveTokens.Set(float64(n))
}

// RecordAudit records an audit write of n events.
func (m *Metrics) RecordAudit(n int, err error) {
	if err != nil {
		m.AuditErrors.Inc()
		return
	}
	m.AuditEventsStored.Add(float64(n))
}

// RecordHTTP records an HTTP request.
func (m *Metrics) RecordHTTP(route string, code int, d time.Duration) {
	m.HTTPRequestDuration.WithLabelValues(route, httpCode(code)).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
