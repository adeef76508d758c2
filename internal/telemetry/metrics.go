package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the Janus gateway.
type Metrics struct {
	RequestTotal         *prometheus.CounterVec
	RequestDurationMs    *prometheus.HistogramVec
	RoutingDecisionTotal *prometheus.CounterVec
	ClassifierLatencyMs  *prometheus.HistogramVec
	SandboxAcquireMs     prometheus.Histogram
	SandboxInUse         prometheus.Gauge
	SandboxFailureTotal  *prometheus.CounterVec
	DegradedTotal        prometheus.Counter
	ArtifactBytesTotal   prometheus.Counter
	ArtifactStoreTotal   *prometheus.CounterVec
	TokensTotal          *prometheus.CounterVec
	CostUSDTotal         *prometheus.CounterVec
	RateLimitHitTotal    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "janus_request_total",
			Help: "Total number of chat requests processed by the gateway.",
		}, []string{"model", "path", "status"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "janus_request_duration_ms",
			Help:    "Total request duration in milliseconds, terminal event included.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 300000},
		}, []string{"model", "path"}),

		RoutingDecisionTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "janus_routing_decision_total",
			Help: "Routing decisions by path and classifier reason.",
		}, []string{"path", "reason"}),

		ClassifierLatencyMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "janus_classifier_latency_ms",
			Help:    "Complexity classifier latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 3000, 5000},
		}, []string{"reason"}),

		SandboxAcquireMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "janus_sandbox_acquire_ms",
			Help:    "Time to acquire a sandbox session in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}),

		SandboxInUse: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "janus_sandbox_in_use",
			Help: "Sandbox sessions currently held.",
		}),

		SandboxFailureTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "janus_sandbox_failure_total",
			Help: "Sandbox failures by stage (create, run, timeout, terminate).",
		}, []string{"stage"}),

		DegradedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "janus_degraded_total",
			Help: "Requests that fell back from the agent path to the fast path.",
		}),

		ArtifactBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "janus_artifact_bytes_total",
			Help: "Total artifact bytes durably stored.",
		}),

		ArtifactStoreTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "janus_artifact_store_total",
			Help: "Artifact store operations by status.",
		}, []string{"status"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "janus_tokens_total",
			Help: "Estimated tokens processed.",
		}, []string{"model", "direction"}),

		CostUSDTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "janus_cost_usd_total",
			Help: "Estimated total cost in USD.",
		}, []string{"model", "path"}),

		RateLimitHitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "janus_rate_limit_hit_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
	}
}

// RequestLabels holds the values for recording a completed request.
type RequestLabels struct {
	Model            string
	Path             string
	Status           string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// RecordRequest records metrics for a completed request.
func (m *Metrics) RecordRequest(labels RequestLabels) {
	m.RequestTotal.WithLabelValues(labels.Model, labels.Path, labels.Status).Inc()
	m.RequestDurationMs.WithLabelValues(labels.Model, labels.Path).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "prompt").Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Model, "completion").Add(float64(labels.CompletionTokens))
	}
	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(labels.Model, labels.Path).Add(labels.CostUSD)
	}
}

// RecordRoutingDecision records one routing decision.
func (m *Metrics) RecordRoutingDecision(path, reason string, latencyMs float64) {
	m.RoutingDecisionTotal.WithLabelValues(path, reason).Inc()
	m.ClassifierLatencyMs.WithLabelValues(reason).Observe(latencyMs)
}

// RecordSandboxFailure records a sandbox failure at the given stage.
func (m *Metrics) RecordSandboxFailure(stage string) {
	m.SandboxFailureTotal.WithLabelValues(stage).Inc()
}

// RecordArtifactStore records an artifact store operation.
func (m *Metrics) RecordArtifactStore(status string, bytes int64) {
	m.ArtifactStoreTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.ArtifactBytesTotal.Add(float64(bytes))
	}
}

// RecordRateLimitHit records a rate-limited request.
func (m *Metrics) RecordRateLimitHit(scope string) {
	m.RateLimitHitTotal.WithLabelValues(scope).Inc()
}
