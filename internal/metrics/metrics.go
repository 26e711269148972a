// Package metrics exposes Prometheus instrumentation for the service. The
// Metrics handle is constructed once at startup and passed to the
// components that record into it; every Record helper tolerates a nil
// receiver so tests can run without a registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Agent metrics
	AgentRepliesTotal    *prometheus.CounterVec
	TierFallbacksTotal   *prometheus.CounterVec
	OverloadRepliesTotal prometheus.Counter

	// Tool metrics
	ToolExecutionsTotal *prometheus.CounterVec

	// Scanner metrics
	ScanAttemptsTotal *prometheus.CounterVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionsEvicted prometheus.Counter
}

// New creates and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		AgentRepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_replies_total",
				Help: "Total number of agent exchanges by model tier and outcome",
			},
			[]string{"tier", "status"},
		),
		TierFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_tier_fallbacks_total",
				Help: "Total number of model-backend fallbacks",
			},
			[]string{"from", "to"},
		),
		OverloadRepliesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "agent_overload_replies_total",
				Help: "Total number of replies answered with the overload message after ladder exhaustion",
			},
		),

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool", "status"},
		),

		ScanAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scan_attempts_total",
				Help: "Total number of document-scan model attempts",
			},
			[]string{"model", "status"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_active",
				Help: "Number of live agent sessions",
			},
		),
		SessionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_total",
				Help: "Total number of agent sessions created",
			},
		),
		SessionsEvicted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_evicted_total",
				Help: "Total number of agent sessions evicted from the registry",
			},
		),
	}

	registry.MustRegister(
		m.AgentRepliesTotal,
		m.TierFallbacksTotal,
		m.OverloadRepliesTotal,
		m.ToolExecutionsTotal,
		m.ScanAttemptsTotal,
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionsEvicted,
	)

	return m
}

// RecordReply counts one completed exchange on a tier.
func (m *Metrics) RecordReply(tier, status string) {
	if m == nil {
		return
	}
	m.AgentRepliesTotal.WithLabelValues(tier, status).Inc()
}

// RecordTierFallback counts one ladder transition.
func (m *Metrics) RecordTierFallback(from, to string) {
	if m == nil {
		return
	}
	m.TierFallbacksTotal.WithLabelValues(from, to).Inc()
}

// RecordOverload counts a reply served by the fixed overload message.
func (m *Metrics) RecordOverload() {
	if m == nil {
		return
	}
	m.OverloadRepliesTotal.Inc()
}

// RecordTool counts one tool dispatch.
func (m *Metrics) RecordTool(tool, status string) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, status).Inc()
}

// RecordScanAttempt counts one scanner model attempt.
func (m *Metrics) RecordScanAttempt(model, status string) {
	if m == nil {
		return
	}
	m.ScanAttemptsTotal.WithLabelValues(model, status).Inc()
}

// SessionCreated tracks a new live session.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionEvicted tracks a session discarded by the registry.
func (m *Metrics) SessionEvicted() {
	if m == nil {
		return
	}
	m.SessionsEvicted.Inc()
	m.SessionsActive.Dec()
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
