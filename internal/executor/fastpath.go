package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/af-corp/janus-gateway/internal/types"
	"github.com/af-corp/janus-gateway/internal/upstream"
)

// FastPath streams a direct model completion: a pure pass-through relay of
// the upstream token stream mapped into content/reasoning deltas. No sandbox,
// no tool calls.
type FastPath struct {
	client        *upstream.Client
	upstreamModel string
}

func NewFastPath(client *upstream.Client, upstreamModel string) *FastPath {
	return &FastPath{client: client, upstreamModel: upstreamModel}
}

func (f *FastPath) Execute(ctx context.Context, req *types.ChatRequest) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent, 16)
	go f.run(ctx, req, out)
	return out
}

func (f *FastPath) run(ctx context.Context, req *types.ChatRequest, out chan<- types.StreamEvent) {
	defer close(out)
	reqID := req.RequestID

	// Sends race with the relay exiting on client disconnect; never block
	// on a reader that is gone.
	emit := func(ev types.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	resp, err := f.client.StreamChat(ctx, upstream.ChatParams{
		Model:       f.upstreamModel,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("fast path upstream connect failed", "request_id", reqID, "error", err)
		emit(types.ErrorEvent(reqID, types.ErrKindUpstreamDisconnect, "upstream connection failed"))
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	finishReason := types.FinishReason("")
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			if finishReason == "" {
				finishReason = types.FinishStop
			}
			emit(types.Done(reqID, finishReason))
			return
		}

		var chunk deltaChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			slog.Warn("fast path: skipping malformed chunk", "request_id", reqID, "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.ReasoningContent != "" {
			if !emit(types.ReasoningDelta(reqID, choice.Delta.ReasoningContent)) {
				return
			}
		}
		if choice.Delta.Content != "" {
			if !emit(types.ContentDelta(reqID, choice.Delta.Content)) {
				return
			}
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			switch *choice.FinishReason {
			case "length":
				finishReason = types.FinishLength
			default:
				finishReason = types.FinishStop
			}
		}
	}

	// The provider hung up before [DONE]: never truncate silently.
	if ctx.Err() != nil {
		return
	}
	msg := "upstream stream ended unexpectedly"
	if err := scanner.Err(); err != nil {
		msg = "upstream stream error: " + err.Error()
	}
	slog.Error("fast path upstream disconnect", "request_id", reqID, "message", msg)
	emit(types.ErrorEvent(reqID, types.ErrKindUpstreamDisconnect, msg))
}

type deltaChunk struct {
	Choices []struct {
		Index int `json:"index"`
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}
