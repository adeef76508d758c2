package upstream

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/types"
)

func testClient(srv *httptest.Server, apiKey string) *Client {
	return NewClient(func() config.UpstreamConfig {
		return config.UpstreamConfig{
			BaseURL: srv.URL,
			APIKey:  apiKey,
			Timeout: 5 * time.Second,
		}
	})
}

func completionJSON(content, finishReason string) string {
	return `{
		"id": "chatcmpl-1",
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": ` + mustJSON(content) + `}, "finish_reason": "` + finishReason + `"}],
		"usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
	}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestChatCompletion(t *testing.T) {
	var gotAuth string
	var gotBody ChatParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &gotBody); err != nil {
			t.Errorf("request body: %v", err)
		}
		io.WriteString(w, completionJSON("The answer is 4.", "stop"))
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv, "sk-test")
	got, err := c.ChatCompletion(context.Background(), ChatParams{
		Model:    "gpt-4o",
		Messages: []types.Message{{Role: "user", Content: types.TextContent("2+2?")}},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody.Stream {
		t.Error("non-streaming call must not set stream")
	}
	if got.Content != "The answer is 4." || got.FinishReason != "stop" {
		t.Errorf("completion = %+v", got)
	}
	if got.PromptTokens != 12 || got.CompletionTokens != 7 {
		t.Errorf("usage = %d/%d", got.PromptTokens, got.CompletionTokens)
	}
}

func TestChatCompletionUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "overloaded"}`, http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv, "")
	_, err := c.ChatCompletion(context.Background(), ChatParams{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error for 429")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error = %v, want status in message", err)
	}
}

func TestChatCompletionNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id": "chatcmpl-1", "choices": []}`)
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv, "")
	if _, err := c.ChatCompletion(context.Background(), ChatParams{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestStreamChatReturnsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params ChatParams
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &params)
		if !params.Stream {
			t.Error("streaming call must set stream true")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv, "")
	resp, err := c.StreamChat(context.Background(), ChatParams{Model: "gpt-4o"})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "data: [DONE]\n\n" {
		t.Errorf("body = %q", body)
	}
}

func TestStreamChatNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv, "")
	if _, err := c.StreamChat(context.Background(), ChatParams{Model: "nope"}); err == nil {
		t.Fatal("expected error for 400")
	}
}

func TestVerifyNeedsAgent(t *testing.T) {
	var gotBody ChatParams
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		io.WriteString(w, completionJSON(`{"needs_agent": true}`, "stop"))
	}))
	t.Cleanup(srv.Close)

	c := testClient(srv, "")
	needs, err := c.VerifyNeedsAgent(context.Background(), "gpt-4o-mini", []types.Message{
		{Role: "user", Content: types.TextContent("clone the repo and run the tests")},
	})
	if err != nil {
		t.Fatalf("VerifyNeedsAgent: %v", err)
	}
	if !needs {
		t.Error("verdict = false, want true")
	}

	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Errorf("verifier call must prepend a system prompt, got %d messages", len(gotBody.Messages))
	}
	if gotBody.MaxTokens == nil || *gotBody.MaxTokens != 16 {
		t.Error("verifier call must cap max_tokens")
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		content string
		want    bool
		wantErr bool
	}{
		{`{"needs_agent": true}`, true, false},
		{`{"needs_agent": false}`, false, false},
		{" {\"needs_agent\": true}\n", true, false},
		{"```json\n{\"needs_agent\": true}\n```", true, false},
		{"```\n{\"needs_agent\": false}\n```", false, false},
		{`yes`, false, true},
		{``, false, true},
	}
	for _, tt := range tests {
		got, err := parseVerdict(tt.content)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseVerdict(%q): expected error", tt.content)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseVerdict(%q): %v", tt.content, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseVerdict(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}
