package abac

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the policy decision core.
type Metrics struct {
	decisions          *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheBypasses      prometheus.Counter
	collaboratorErrors *prometheus.CounterVec
}

// NewMetrics registers the decision core collectors with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medshare_abac_decisions_total",
				Help: "Total number of authorization decisions by matched policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		evaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "medshare_abac_evaluation_duration_seconds",
				Help:    "Latency of policy evaluation including collaborator lookups",
				Buckets: prometheus.DefBuckets,
			},
		),
		cacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "medshare_abac_decision_cache_hits_total",
				Help: "Total number of decisions served from the cache",
			},
		),
		cacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "medshare_abac_decision_cache_misses_total",
				Help: "Total number of cache lookups that fell through to evaluation",
			},
		),
		cacheBypasses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "medshare_abac_decision_cache_bypasses_total",
				Help: "Total number of emergency requests that bypassed the cache",
			},
		),
		collaboratorErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "medshare_abac_collaborator_errors_total",
				Help: "Total number of failed collaborator lookups by collaborator",
			},
			[]string{"collaborator"},
		),
	}
}

func (m *Metrics) observeDecision(d Decision, seconds float64) {
	if m == nil {
		return
	}
	outcome := "deny"
	if d.Permitted {
		outcome = "permit"
	}
	m.decisions.WithLabelValues(d.PolicyMatched, outcome).Inc()
	m.evaluationDuration.Observe(seconds)
}

func (m *Metrics) observeCollaboratorError(err error) {
	if m == nil {
		return
	}
	name := "unknown"
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		name = ce.Collaborator
	}
	m.collaboratorErrors.WithLabelValues(name).Inc()
}

func (m *Metrics) observeCacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

func (m *Metrics) observeCacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

func (m *Metrics) observeCacheBypass() {
	if m != nil {
		m.cacheBypasses.Inc()
	}
}
