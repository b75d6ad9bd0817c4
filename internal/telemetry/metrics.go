package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
)

// Decision sources.
const (
	SourceEvaluator = "evaluator"
	SourceEnforcer  = "enforcer"
)

// Metrics holds the IAM Prometheus collectors
type Metrics struct {
	DecisionsTotal *prometheus.CounterVec
	MutationsTotal *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on registry. A nil registry
// leaves them unregistered.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qlp_iam_decisions_total",
				Help: "Authorization decisions by source, resource and result",
			},
			[]string{"source", "resource", "result"},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qlp_iam_mutations_total",
				Help: "Store mutations by operation and result",
			},
			[]string{"operation", "result"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qlp_iam_snapshot_cache_lookups_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"result"},
		),
	}
	if registry != nil {
		registry.MustRegister(m.DecisionsTotal, m.MutationsTotal, m.CacheLookups)
	}
	return m
}

// RecordDecision counts one decision.
func (m *Metrics) RecordDecision(source string, resource rbac.Resource, allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.DecisionsTotal.WithLabelValues(source, string(resource), result).Inc()
}

// RecordMutation counts one store mutation.
func (m *Metrics) RecordMutation(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MutationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordCacheLookup counts a snapshot cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// EvaluatorObserver feeds evaluator decisions into the decision counter.
func (m *Metrics) EvaluatorObserver() rbac.Observer {
	return func(d rbac.Decision) {
		m.RecordDecision(SourceEvaluator, d.Resource, d.Allowed)
	}
}
