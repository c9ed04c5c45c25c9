package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	RequestTotal       *prometheus.CounterVec
	RequestDurationMs  *prometheus.HistogramVec
	GatewayOverheadMs  *prometheus.HistogramVec
	TokensTotal        *prometheus.CounterVec
	BilledCentsTotal   *prometheus.CounterVec
	RedactionsTotal    *prometheus.CounterVec
	FilterActionTotal  *prometheus.CounterVec
	RateLimitHitTotal  *prometheus.CounterVec
	LedgerFailureTotal *prometheus.CounterVec
	CircuitTransitions *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers on reg. Tests pass a fresh registry.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quieter_request_total",
			Help: "Total number of requests processed by the gateway.",
		}, []string{"endpoint", "model", "provider", "status"}),

		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quieter_upstream_duration_ms",
			Help:    "Upstream model call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		}, []string{"model", "provider"}),

		GatewayOverheadMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quieter_gateway_overhead_ms",
			Help:    "Gateway processing overhead in milliseconds (excluding provider latency).",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"endpoint"}),

		TokensTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quieter_tokens_total",
			Help: "Total tokens reported by upstream providers.",
		}, []string{"model", "direction"}),

		BilledCentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quieter_billed_cents_total",
			Help: "Total cost billed to tenants in cents.",
		}, []string{"model", "provider"}),

		RedactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quieter_redactions_total",
			Help: "Total redactions applied, by category.",
		}, []string{"category"}),

		FilterActionTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quieter_filter_action_total",
			Help: "Total filter actions taken.",
		}, []string{"filter", "action"}),

		RateLimitHitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quieter_rate_limit_hit_total",
			Help: "Requests rejected by rate or spend limits.",
		}, []string{"dimension", "plan"}),

		LedgerFailureTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quieter_ledger_failure_total",
			Help: "Usage ledger writes that failed and were not surfaced to the caller.",
		}, []string{"operation"}),

		CircuitTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quieter_circuit_transitions_total",
			Help: "Provider circuit breaker state changes, by target state.",
		}, []string{"provider", "state"}),
	}
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(
		labels.Endpoint, labels.Model, labels.Provider, labels.Status,
	).Inc()

	if labels.UpstreamMs > 0 {
		m.RequestDurationMs.WithLabelValues(
			labels.Model, labels.Provider,
		).Observe(labels.UpstreamMs)
	}

	m.GatewayOverheadMs.WithLabelValues(
		labels.Endpoint,
	).Observe(labels.OverheadMs)

	if labels.InputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "input").Add(float64(labels.InputTokens))
	}
	if labels.OutputTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "output").Add(float64(labels.OutputTokens))
	}
	if labels.BilledCents > 0 {
		m.BilledCentsTotal.WithLabelValues(labels.Model, labels.Provider).Add(float64(labels.BilledCents))
	}
}

// RecordRedactions adds per-category redaction counts.
func (m *Metrics) RecordRedactions(counts map[string]int) {
	for category, n := range counts {
		if n > 0 {
			m.RedactionsTotal.WithLabelValues(category).Add(float64(n))
		}
	}
}

// RecordFilterAction records a filter action metric.
func (m *Metrics) RecordFilterAction(filter, action string) {
	m.FilterActionTotal.WithLabelValues(filter, action).Inc()
}

// RecordRateLimitHit records a request rejected by the rpm or budget check.
func (m *Metrics) RecordRateLimitHit(dimension, plan string) {
	m.RateLimitHitTotal.WithLabelValues(dimension, plan).Inc()
}

// RecordLedgerFailure records a swallowed ledger write error.
func (m *Metrics) RecordLedgerFailure(operation string) {
	m.LedgerFailureTotal.WithLabelValues(operation).Inc()
}

// RecordCircuitTransition counts a breaker moving to state.
func (m *Metrics) RecordCircuitTransition(provider, state string) {
	m.CircuitTransitions.WithLabelValues(provider, state).Inc()
}

// RequestLabels holds the label values for recording a request.
type RequestLabels struct {
	Endpoint     string
	Model        string
	Provider     string
	Status       string
	UpstreamMs   float64
	OverheadMs   float64
	InputTokens  int64
	OutputTokens int64
	BilledCents  int64
}
