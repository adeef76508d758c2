// Package router makes the single routing decision for each request and
// drives the chosen executor through the stream multiplexer. One decision,
// one executor, one terminal event.
package router

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/af-corp/janus-gateway/internal/classifier"
	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/executor"
	"github.com/af-corp/janus-gateway/internal/memory"
	"github.com/af-corp/janus-gateway/internal/sandbox"
	"github.com/af-corp/janus-gateway/internal/stream"
	"github.com/af-corp/janus-gateway/internal/telemetry"
	"github.com/af-corp/janus-gateway/internal/types"
	"github.com/af-corp/janus-gateway/internal/upstream"
	"github.com/af-corp/janus-gateway/internal/usage"
)

// Deps bundles the router's collaborators. Everything except the sandbox
// manager and upstream client may be nil-capable or disabled via config.
type Deps struct {
	Routing    func() config.RoutingConfig
	Models     func() config.ModelsConfig
	Telemetry  func() config.TelemetryConfig
	Classifier *classifier.Classifier
	Sandbox    *sandbox.Manager
	Upstream   *upstream.Client
	Artifacts  executor.ArtifactStore
	Policy     *Policy
	Metrics    *telemetry.Metrics
	Usage      *usage.Store
	Memory     *memory.Extractor
}

type Router struct {
	deps Deps
}

func New(deps Deps) *Router {
	return &Router{deps: deps}
}

// Result summarizes one handled request for the transport layer.
type Result struct {
	Decision types.RoutingDecision
	Stats    stream.RelayStats
	Degraded bool
}

// Handle routes one request and relays its full event stream to the sink.
// The sink has not been written to when Handle is called; by the time it
// returns, the stream is complete (or the client is gone).
func (r *Router) Handle(ctx context.Context, req *types.ChatRequest, sink stream.Sink) Result {
	start := time.Now()
	trace := newTrace(req.RequestID, r.deps.Telemetry().DebugTrace)

	analysis := r.deps.Classifier.Classify(ctx, req.Messages, req.GenerationFlags)
	trace.add("classified", map[string]any{
		"is_complex": analysis.IsComplex,
		"reason":     string(analysis.Reason),
	})

	decision := r.decide(ctx, req, analysis)
	trace.add("routed", map[string]any{
		"path":   string(decision.Path),
		"reason": decision.Reason,
	})
	r.deps.Metrics.RecordRoutingDecision(
		string(decision.Path), decision.Reason,
		float64(analysis.Latency.Milliseconds()))

	slog.Info("routing decision",
		"request_id", req.RequestID,
		"path", decision.Path,
		"reason", decision.Reason,
		"classify_ms", analysis.Latency.Milliseconds())

	// Accumulate the assistant reply for post-response memory extraction
	// without the executors knowing about it.
	recSink := &recordingSink{inner: sink}

	exec, session, degraded := r.prepare(ctx, req, decision, recSink, trace)
	if session != nil {
		defer r.deps.Sandbox.Release(session)
	}

	execReq := r.withRecalledMemories(ctx, req, trace)

	events := exec.Execute(ctx, execReq)
	mux := stream.NewMultiplexer(r.deps.Routing().KeepAliveInterval)
	stats := mux.Relay(ctx, req.RequestID, events, recSink)
	trace.add("finished", map[string]any{
		"finish_reason": string(stats.FinishReason),
		"err_kind":      string(stats.ErrKind),
		"canceled":      stats.Canceled,
	})

	r.finalize(req, decision, stats, degraded, recSink.content, start)
	trace.flush(r.deps.Usage)

	return Result{Decision: decision, Stats: stats, Degraded: degraded}
}

// decide locks in the routing decision. After this there is no mid-stream
// re-routing.
func (r *Router) decide(ctx context.Context, req *types.ChatRequest, analysis types.ComplexityAnalysis) types.RoutingDecision {
	cfg := r.deps.Routing()

	path := types.PathFast
	reason := string(analysis.Reason)
	switch {
	case cfg.AlwaysAgent:
		path = types.PathAgent
		reason = "always_agent"
	case analysis.IsComplex:
		path = types.PathAgent
	}

	if path == types.PathAgent && r.deps.Policy != nil {
		now := time.Now().UTC()
		allowed := r.deps.Policy.AllowAgent(ctx, PolicyInput{
			User:    PolicyUser{ID: req.UserID, APIKeyID: req.APIKeyID},
			Request: PolicyReq{Model: req.Model, Reason: reason},
			Time:    PolicyTime{Hour: now.Hour(), Day: now.Weekday().String()},
		})
		if !allowed {
			slog.Info("agent path denied by policy",
				"request_id", req.RequestID, "model", req.Model)
			path = types.PathFast
			reason = "policy_denied"
		}
	}

	return types.RoutingDecision{
		Path:      path,
		DecidedAt: time.Now(),
		Reason:    reason,
		Analysis:  analysis,
	}
}

// prepare builds the executor for the decided path, acquiring a sandbox
// session for the agent path. When no session can be had the request falls
// back to the fast path and the response is marked degraded.
func (r *Router) prepare(ctx context.Context, req *types.ChatRequest, decision types.RoutingDecision, sink stream.Sink, trace *trace) (executor.Executor, *sandbox.Session, bool) {
	upstreamModel := r.upstreamModel(req.Model)

	if decision.Path != types.PathAgent {
		return executor.NewFastPath(r.deps.Upstream, upstreamModel), nil, false
	}

	session, err := r.deps.Sandbox.Acquire(ctx)
	if err != nil {
		slog.Warn("sandbox unavailable, degrading to fast path",
			"request_id", req.RequestID, "error", err)
		r.deps.Metrics.DegradedTotal.Inc()
		trace.add("degraded", map[string]any{"error": err.Error()})
		if serr := sink.Degraded(); serr != nil {
			slog.Warn("degraded notice write failed",
				"request_id", req.RequestID, "error", serr)
		}
		return executor.NewFastPath(r.deps.Upstream, upstreamModel), nil, true
	}

	trace.add("session_acquired", map[string]any{"session_id": session.ID})
	return executor.NewAgentPath(session, r.deps.Sandbox.Provisioner(), r.deps.Artifacts, upstreamModel), session, false
}

// withRecalledMemories prepends the user's stored memories as a system
// message when the request opts in. The original request stays untouched;
// classification and accounting run on the client's messages.
func (r *Router) withRecalledMemories(ctx context.Context, req *types.ChatRequest, trace *trace) *types.ChatRequest {
	if r.deps.Memory == nil || !req.EnableMemory || req.UserID == "" {
		return req
	}

	memories, err := r.deps.Memory.Recall(ctx, req.UserID, 20)
	if err != nil {
		slog.Warn("memory recall failed",
			"request_id", req.RequestID, "user_id", req.UserID, "error", err)
		return req
	}
	if len(memories) == 0 {
		return req
	}

	keys := make([]string, 0, len(memories))
	for k := range memories {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Known facts about this user from previous conversations:\n")
	for _, k := range keys {
		b.WriteString("- ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(memories[k])
		b.WriteString("\n")
	}

	trace.add("memories_recalled", map[string]any{"count": len(memories)})

	enriched := *req
	enriched.Messages = append([]types.Message{{
		Role:    "system",
		Content: types.TextContent(b.String()),
	}}, req.Messages...)
	return &enriched
}

func (r *Router) upstreamModel(model string) string {
	if mapping, ok := r.deps.Models().Models[model]; ok && mapping.UpstreamModel != "" {
		return mapping.UpstreamModel
	}
	return model
}

// finalize records metrics and usage and kicks off memory extraction. Runs
// after the terminal event; nothing here may delay or fail the response.
func (r *Router) finalize(req *types.ChatRequest, decision types.RoutingDecision, stats stream.RelayStats, degraded bool, reply []byte, start time.Time) {
	executedPath := string(decision.Path)
	if degraded {
		executedPath = string(types.PathFast)
	}

	status := string(stats.FinishReason)
	if stats.Canceled {
		status = "canceled"
	}

	promptTokens := approxTokens(promptChars(req.Messages))
	completionTokens := approxTokens(stats.ContentChars)

	var cost float64
	if mapping, ok := r.deps.Models().Models[req.Model]; ok {
		cost = mapping.Pricing.Cost(promptTokens, completionTokens)
	}

	r.deps.Metrics.RecordRequest(telemetry.RequestLabels{
		Model:            req.Model,
		Path:             executedPath,
		Status:           status,
		DurationMs:       float64(time.Since(start).Milliseconds()),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		CostUSD:          cost,
	})

	if r.deps.Usage != nil {
		r.deps.Usage.InsertAsync(usage.Record{
			RequestID:        req.RequestID,
			APIKeyID:         req.APIKeyID,
			UserID:           req.UserID,
			Model:            req.Model,
			Path:             executedPath,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			CostUSD:          cost,
			FinishReason:     string(stats.FinishReason),
			ErrKind:          string(stats.ErrKind),
			Degraded:         degraded,
			DurationMs:       time.Since(start).Milliseconds(),
		})
	}

	if r.deps.Memory != nil && req.EnableMemory && !stats.Canceled && stats.ErrKind == "" {
		r.deps.Memory.ExtractAsync(req.RequestID, req.UserID, req.Messages, string(reply))
	}
}

// approxTokens estimates token counts from character counts. The upstream
// usage object is not available on relayed streams, so four chars per token
// is close enough for accounting.
func approxTokens(chars int) int {
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

func promptChars(messages []types.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Text())
	}
	return total
}

// recordingSink tees content deltas into a buffer on the way to the real
// sink.
type recordingSink struct {
	inner   stream.Sink
	content []byte
}

func (s *recordingSink) Send(ev types.StreamEvent) error {
	if ev.Type == types.EventContentDelta {
		s.content = append(s.content, ev.Text...)
	}
	return s.inner.Send(ev)
}

func (s *recordingSink) KeepAlive() error { return s.inner.KeepAlive() }
func (s *recordingSink) Degraded() error  { return s.inner.Degraded() }
