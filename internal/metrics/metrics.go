// Package metrics exposes Prometheus collectors for the admission core
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for admission decisions,
// verification cache behavior, and revocation activity. A nil *Metrics is
// valid and turns every record call into a no-op.
type Metrics struct {
	registry *prometheus.Registry

	admissionsTotal   *prometheus.CounterVec
	verifyCacheHits   prometheus.Counter
	verifyCacheMisses prometheus.Counter
	rateLimitDenials  *prometheus.CounterVec
	tokensRevoked     prometheus.Counter
	keysRevoked       prometheus.Counter
}

// New creates a metrics instance with its own registry
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		admissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "admissions_total",
				Help:      "Admission gate decisions by outcome and tier",
			},
			[]string{"outcome", "tier"},
		),
		verifyCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_cache_hits_total",
			Help:      "API key verifications served from the fast cache",
		}),
		verifyCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verify_cache_misses_total",
			Help:      "API key verifications that fell through to the credential store",
		}),
		rateLimitDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_denials_total",
				Help:      "Requests denied by the rate limiter, by violated rule",
			},
			[]string{"rule"},
		),
		tokensRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_revoked_total",
			Help:      "Session tokens revoked",
		}),
		keysRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_revoked_total",
			Help:      "API keys revoked",
		}),
	}

	registry.MustRegister(
		m.admissionsTotal,
		m.verifyCacheHits,
		m.verifyCacheMisses,
		m.rateLimitDenials,
		m.tokensRevoked,
		m.keysRevoked,
	)

	return m
}

// Handler returns an HTTP handler serving the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAdmission records a gate decision
func (m *Metrics) RecordAdmission(outcome, tier string) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(outcome, tier).Inc()
}

// RecordCacheHit records a fast-path verification
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.verifyCacheHits.Inc()
}

// RecordCacheMiss records a slow-path verification
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.verifyCacheMisses.Inc()
}

// RecordRateLimitDenial records a denial attributed to a rule
func (m *Metrics) RecordRateLimitDenial(rule string) {
	if m == nil {
		return
	}
	m.rateLimitDenials.WithLabelValues(rule).Inc()
}

// RecordTokenRevoked counts revoked session tokens
func (m *Metrics) RecordTokenRevoked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensRevoked.Add(float64(n))
}

// RecordKeyRevoked counts revoked API keys
func (m *Metrics) RecordKeyRevoked(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.keysRevoked.Add(float64(n))
}
