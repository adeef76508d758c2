package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/af-corp/janus-gateway/internal/auth"
	"github.com/af-corp/janus-gateway/internal/classifier"
	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/httputil"
	"github.com/af-corp/janus-gateway/internal/router"
	"github.com/af-corp/janus-gateway/internal/sandbox"
	"github.com/af-corp/janus-gateway/internal/telemetry"
	"github.com/af-corp/janus-gateway/internal/types"
	"github.com/af-corp/janus-gateway/internal/upstream"
)

var testMetrics = telemetry.NewMetrics()

type neverAgentVerifier struct{}

func (neverAgentVerifier) VerifyNeedsAgent(ctx context.Context, model string, messages []types.Message) (bool, error) {
	return false, nil
}

type idleSandboxAPI struct{}

func (idleSandboxAPI) Create(ctx context.Context, timeout time.Duration) (string, string, error) {
	return "sbx-1", "http://sandbox.local", nil
}

func (idleSandboxAPI) RunAgent(ctx context.Context, sessionID string, params sandbox.AgentRunParams) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(`{"type":"done","finish_reason":"stop"}` + "\n")), nil
}

func (idleSandboxAPI) Terminate(ctx context.Context, sessionID string) error { return nil }

type nopArtifacts struct{}

func (nopArtifacts) Put(r io.Reader, mimeType, displayName string) (types.Artifact, error) {
	io.Copy(io.Discard, r)
	return types.Artifact{ID: "art-1"}, nil
}

func modelsConfig() func() config.ModelsConfig {
	return func() config.ModelsConfig {
		return config.ModelsConfig{Models: map[string]config.ModelMapping{
			"janus-chat":      {UpstreamModel: "gpt-4o"},
			"janus-chat-mini": {UpstreamModel: "gpt-4o-mini"},
		}}
	}
}

// testHandler wires a handler against a fake upstream and sandbox.
func testHandler(t *testing.T, reply string) *Handler {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", reply)
		fmt.Fprint(w, "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	client := upstream.NewClient(func() config.UpstreamConfig {
		return config.UpstreamConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}
	})
	clf := classifier.New(func() config.ClassifierConfig {
		return config.ClassifierConfig{VerifyModel: "gpt-4o-mini", VerifyTimeout: time.Second}
	}, neverAgentVerifier{}, nil)
	mgr := sandbox.NewManager(func() config.SandboxConfig {
		return config.SandboxConfig{
			Timeout: time.Minute, PoolSize: 1, AcquireWait: 100 * time.Millisecond, MaxRetries: 1,
			Breaker: config.CircuitBreakerConfig{FailureThreshold: 100, RecoveryProbeInterval: time.Second},
		}
	}, idleSandboxAPI{}, nil)

	rt := router.New(router.Deps{
		Routing:    func() config.RoutingConfig { return config.RoutingConfig{KeepAliveInterval: time.Second} },
		Models:     modelsConfig(),
		Telemetry:  func() config.TelemetryConfig { return config.TelemetryConfig{} },
		Classifier: clf,
		Sandbox:    mgr,
		Upstream:   client,
		Artifacts:  nopArtifacts{},
		Metrics:    testMetrics,
	})
	return NewHandler(rt, modelsConfig())
}

func postChat(t *testing.T, h *Handler, body string, ctx context.Context) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req_test_1")
	h.ChatCompletions(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.APIError {
	t.Helper()
	var apiErr httputil.APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return apiErr
}

func TestChatCompletionsInvalidJSON(t *testing.T) {
	h := testHandler(t, "ok")
	rec := postChat(t, h, `{not json`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if decodeError(t, rec).Error.Code != "invalid_request" {
		t.Error("wrong error code")
	}
}

func TestChatCompletionsMissingFields(t *testing.T) {
	h := testHandler(t, "ok")

	rec := postChat(t, h, `{"messages":[{"role":"user","content":"hi"}]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing model: status = %d, want 400", rec.Code)
	}

	rec = postChat(t, h, `{"model":"janus-chat"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing messages: status = %d, want 400", rec.Code)
	}

	rec = postChat(t, h, `{"model":"janus-chat","messages":[{"role":"robot","content":"hi"}]}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: status = %d, want 400", rec.Code)
	}
}

func TestChatCompletionsUnknownModel(t *testing.T) {
	h := testHandler(t, "ok")
	rec := postChat(t, h, `{"model":"gpt-9","messages":[{"role":"user","content":"hi"}]}`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if decodeError(t, rec).Error.Code != "not_found" {
		t.Error("wrong error code")
	}
}

func TestChatCompletionsModelNotAllowedForKey(t *testing.T) {
	h := testHandler(t, "ok")
	ctx := auth.ContextWithAuth(context.Background(), &auth.AuthInfo{
		KeyID:         "key-1",
		UserID:        "u1",
		AllowedModels: []string{"janus-chat-mini"},
	})
	rec := postChat(t, h, `{"model":"janus-chat","messages":[{"role":"user","content":"hi"}]}`, ctx)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if decodeError(t, rec).Error.Code != "model_not_allowed" {
		t.Error("wrong error code")
	}
}

func TestChatCompletionsBlocking(t *testing.T) {
	h := testHandler(t, "Hello from the gateway")
	rec := postChat(t, h, `{"model":"janus-chat","messages":[{"role":"user","content":"say hello"}]}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp types.ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Object != "chat.completion" {
		t.Errorf("object = %q", resp.Object)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("id = %q", resp.ID)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %d", len(resp.Choices))
	}
	if resp.Choices[0].Message.Content != "Hello from the gateway" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %q", resp.Choices[0].FinishReason)
	}
	if resp.Usage.TotalTokens == 0 {
		t.Error("usage must be approximated, got zero total tokens")
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	h := testHandler(t, "streamed reply")
	rec := postChat(t, h, `{"model":"janus-chat","stream":true,"messages":[{"role":"user","content":"say hello"}]}`, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"content":"streamed reply"`) {
		t.Errorf("body missing content delta: %s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Errorf("stream must end with [DONE]: %s", body)
	}
}

func TestListModels(t *testing.T) {
	h := testHandler(t, "ok")
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	h.ListModels(rec, req)

	var resp modelListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Object != "list" || len(resp.Data) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestListModelsFilteredByKeyAllowlist(t *testing.T) {
	h := testHandler(t, "ok")
	ctx := auth.ContextWithAuth(context.Background(), &auth.AuthInfo{
		KeyID:         "key-1",
		AllowedModels: []string{"janus-chat-mini"},
	})
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ListModels(rec, req)

	var resp modelListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "janus-chat-mini" {
		t.Fatalf("resp = %+v", resp)
	}
}
