package executor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/types"
	"github.com/af-corp/janus-gateway/internal/upstream"
)

func upstreamFor(srv *httptest.Server) *upstream.Client {
	return upstream.NewClient(func() config.UpstreamConfig {
		return config.UpstreamConfig{BaseURL: srv.URL, Timeout: 5 * time.Second}
	})
}

func sseServer(t *testing.T, frames ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, events <-chan types.StreamEvent) []types.StreamEvent {
	t.Helper()
	var out []types.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for event channel to close")
		}
	}
}

func chatRequest(text string) *types.ChatRequest {
	return &types.ChatRequest{
		RequestID: "req_test",
		Model:     "janus-chat",
		Messages:  []types.Message{{Role: "user", Content: types.TextContent(text)}},
	}
}

func TestFastPathRelaysStream(t *testing.T) {
	srv := sseServer(t,
		`{"choices":[{"index":0,"delta":{"reasoning_content":"thinking"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":" world"}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	)

	fp := NewFastPath(upstreamFor(srv), "gpt-4o")
	events := collect(t, fp.Execute(context.Background(), chatRequest("hi")))

	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %+v", len(events), events)
	}
	if events[0].Type != types.EventReasoningDelta || events[0].Text != "thinking" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Text != "Hello" || events[2].Text != " world" {
		t.Error("content deltas wrong")
	}
	last := events[3]
	if last.Type != types.EventDone || last.FinishReason != types.FinishStop {
		t.Errorf("terminal = %+v, want done(stop)", last)
	}
}

func TestFastPathLengthFinish(t *testing.T) {
	srv := sseServer(t,
		`{"choices":[{"index":0,"delta":{"content":"truncat"}}]}`,
		`{"choices":[{"index":0,"delta":{},"finish_reason":"length"}]}`,
		`[DONE]`,
	)

	fp := NewFastPath(upstreamFor(srv), "gpt-4o")
	events := collect(t, fp.Execute(context.Background(), chatRequest("hi")))

	last := events[len(events)-1]
	if last.Type != types.EventDone || last.FinishReason != types.FinishLength {
		t.Errorf("terminal = %+v, want done(length)", last)
	}
}

func TestFastPathMidStreamDisconnect(t *testing.T) {
	// Stream ends without [DONE]: the connection was dropped.
	srv := sseServer(t,
		`{"choices":[{"index":0,"delta":{"content":"partial"}}]}`,
	)

	fp := NewFastPath(upstreamFor(srv), "gpt-4o")
	events := collect(t, fp.Execute(context.Background(), chatRequest("hi")))

	last := events[len(events)-1]
	if last.Type != types.EventError || last.ErrKind != types.ErrKindUpstreamDisconnect {
		t.Errorf("terminal = %+v, want error(upstream_disconnect)", last)
	}
}

func TestFastPathConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	fp := NewFastPath(upstreamFor(srv), "gpt-4o")
	events := collect(t, fp.Execute(context.Background(), chatRequest("hi")))

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != types.EventError || events[0].ErrKind != types.ErrKindUpstreamDisconnect {
		t.Errorf("event = %+v, want error(upstream_disconnect)", events[0])
	}
}

func TestFastPathCancelClosesWithoutTerminal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	fp := NewFastPath(upstreamFor(srv), "gpt-4o")
	events := fp.Execute(ctx, chatRequest("hi"))

	cancel()
	got := collect(t, events)
	for _, ev := range got {
		if ev.Terminal() {
			t.Errorf("canceled stream must not emit a terminal event, got %+v", ev)
		}
	}
}
