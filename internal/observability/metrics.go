package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ComplianceChecks   *prometheus.CounterVec
	Violations         *prometheus.CounterVec
	UsageValidations   *prometheus.CounterVec
	EPSFallbacks       prometheus.Counter
	AuthDenials        *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ComplianceChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governance",
			Name:      "compliance_checks_total",
			Help:      "Completed activity compliance checks by resulting risk level.",
		}, []string{"risk_level"}),
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governance",
			Name:      "violations_total",
			Help:      "Rule violations detected by severity.",
		}, []string{"severity"}),
		UsageValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governance",
			Name:      "usage_validations_total",
			Help:      "Usage validation requests by decision.",
		}, []string{"decision"}),
		EPSFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "governance",
			Name:      "eps_fallbacks_total",
			Help:      "Bindings validated against the raw POM because no snapshot existed.",
		}),
		AuthDenials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governance",
			Name:      "auth_denials_total",
			Help:      "Rejected requests by denial reason.",
		}, []string{"reason"}),
		EvaluationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "governance",
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of compliance checks and usage validations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ComplianceChecks,
		m.Violations,
		m.UsageValidations,
		m.EPSFallbacks,
		m.AuthDenials,
		m.EvaluationDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDuration records the time elapsed since start for operation.
// Safe on a nil receiver so callers without metrics need no guard.
func (m *Metrics) ObserveDuration(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.EvaluationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordCompliance counts one completed check and its violations.
func (m *Metrics) RecordCompliance(riskLevel string, severities []string) {
	if m == nil {
		return
	}
	m.ComplianceChecks.WithLabelValues(riskLevel).Inc()
	for _, s := range severities {
		m.Violations.WithLabelValues(s).Inc()
	}
}

// RecordValidation counts one usage validation decision.
func (m *Metrics) RecordValidation(allowed bool) {
	if m == nil {
		return
	}
	decision := "blocked"
	if allowed {
		decision = "allowed"
	}
	m.UsageValidations.WithLabelValues(decision).Inc()
}

// RecordEPSFallback counts one raw-POM fallback.
func (m *Metrics) RecordEPSFallback() {
	if m == nil {
		return
	}
	m.EPSFallbacks.Inc()
}

// RecordAuthDenial counts one rejected request.
func (m *Metrics) RecordAuthDenial(reason string) {
	if m == nil {
		return
	}
	m.AuthDenials.WithLabelValues(reason).Inc()
}
