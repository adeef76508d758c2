package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var metrics = NewMetrics()

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRecordRequest(t *testing.T) {
	metrics.RecordRequest(RequestLabels{
		Model:            "janus-chat",
		Path:             "fast",
		Status:           "stop",
		DurationMs:       120,
		PromptTokens:     40,
		CompletionTokens: 25,
		CostUSD:          0.0004,
	})

	total := metrics.RequestTotal.WithLabelValues("janus-chat", "fast", "stop")
	if got := counterValue(t, total); got < 1 {
		t.Errorf("request total = %v, want >= 1", got)
	}
	prompt := metrics.TokensTotal.WithLabelValues("janus-chat", "prompt")
	if got := counterValue(t, prompt); got < 40 {
		t.Errorf("prompt tokens = %v, want >= 40", got)
	}
	cost := metrics.CostUSDTotal.WithLabelValues("janus-chat", "fast")
	if got := counterValue(t, cost); got <= 0 {
		t.Errorf("cost = %v, want > 0", got)
	}
}

func TestRecordRequestSkipsZeroValues(t *testing.T) {
	metrics.RecordRequest(RequestLabels{
		Model:  "janus-zero",
		Path:   "fast",
		Status: "error",
	})

	tokens := metrics.TokensTotal.WithLabelValues("janus-zero", "prompt")
	if got := counterValue(t, tokens); got != 0 {
		t.Errorf("zero-token request must not add token counts, got %v", got)
	}
	cost := metrics.CostUSDTotal.WithLabelValues("janus-zero", "fast")
	if got := counterValue(t, cost); got != 0 {
		t.Errorf("zero-cost request must not add cost, got %v", got)
	}
}

func TestRecordRoutingDecision(t *testing.T) {
	metrics.RecordRoutingDecision("agent", "keyword_match", 2.5)
	c := metrics.RoutingDecisionTotal.WithLabelValues("agent", "keyword_match")
	if got := counterValue(t, c); got < 1 {
		t.Errorf("routing decision total = %v, want >= 1", got)
	}
}

func TestRecordSandboxFailure(t *testing.T) {
	metrics.RecordSandboxFailure("timeout")
	c := metrics.SandboxFailureTotal.WithLabelValues("timeout")
	if got := counterValue(t, c); got < 1 {
		t.Errorf("sandbox failure total = %v, want >= 1", got)
	}
}

func TestRecordArtifactStore(t *testing.T) {
	before := counterValue(t, metrics.ArtifactBytesTotal)
	metrics.RecordArtifactStore("ok", 2048)
	if got := counterValue(t, metrics.ArtifactBytesTotal); got != before+2048 {
		t.Errorf("artifact bytes = %v, want %v", got, before+2048)
	}

	before = counterValue(t, metrics.ArtifactBytesTotal)
	metrics.RecordArtifactStore("error", 0)
	if got := counterValue(t, metrics.ArtifactBytesTotal); got != before {
		t.Error("failed store must not add bytes")
	}
}
