package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/af-corp/janus-gateway/internal/types"
)

// SSEWriter writes StreamEvents as OpenAI-shaped chat.completion.chunk
// frames, extended by the janus field for lifecycle notifications. The
// stream ends with a literal "data: [DONE]" frame after the terminal event.
type SSEWriter struct {
	w        http.ResponseWriter
	flusher  http.Flusher
	reqID    string
	model    string
	created  int64
	roleSent bool
}

// NewSSEWriter prepares the response for event streaming. Fails if the
// underlying writer cannot flush.
func NewSSEWriter(w http.ResponseWriter, reqID, model string) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{
		w:       w,
		flusher: flusher,
		reqID:   reqID,
		model:   model,
		created: time.Now().Unix(),
	}, nil
}

func (s *SSEWriter) chunk() types.ChatChunk {
	return types.ChatChunk{
		ID:      "chatcmpl-" + s.reqID,
		Object:  "chat.completion.chunk",
		Created: s.created,
		Model:   s.model,
		Choices: []types.ChunkChoice{{Index: 0}},
	}
}

func (s *SSEWriter) writeChunk(chunk types.ChatChunk) error {
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *SSEWriter) writeJanus(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal janus payload: %w", err)
	}
	chunk := s.chunk()
	chunk.Janus = &types.JanusEvent{Event: event, Payload: raw}
	return s.writeChunk(chunk)
}

func (s *SSEWriter) writeDone() error {
	if _, err := fmt.Fprintf(s.w, "data: [DONE]\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Send implements Sink.
func (s *SSEWriter) Send(ev types.StreamEvent) error {
	switch ev.Type {
	case types.EventContentDelta, types.EventReasoningDelta:
		chunk := s.chunk()
		if !s.roleSent {
			chunk.Choices[0].Delta.Role = "assistant"
			s.roleSent = true
		}
		if ev.Type == types.EventContentDelta {
			chunk.Choices[0].Delta.Content = ev.Text
		} else {
			chunk.Choices[0].Delta.ReasoningContent = ev.Text
		}
		return s.writeChunk(chunk)

	case types.EventToolStart:
		return s.writeJanus("tool_start", map[string]any{
			"name": ev.ToolName,
			"meta": ev.ToolMeta,
		})

	case types.EventToolEnd:
		return s.writeJanus("tool_end", map[string]any{
			"name":   ev.ToolName,
			"result": ev.ToolResult,
		})

	case types.EventArtifact:
		return s.writeJanus("artifact", ev.Artifact)

	case types.EventDone:
		chunk := s.chunk()
		reason := string(ev.FinishReason)
		chunk.Choices[0].FinishReason = &reason
		if err := s.writeChunk(chunk); err != nil {
			return err
		}
		return s.writeDone()

	case types.EventError:
		reason := string(types.FinishError)
		if ev.ErrKind == types.ErrKindSandboxTimeout {
			reason = string(types.FinishTimeout)
		}
		raw, _ := json.Marshal(map[string]string{
			"kind":    string(ev.ErrKind),
			"message": ev.ErrMessage,
		})
		chunk := s.chunk()
		chunk.Choices[0].FinishReason = &reason
		chunk.Janus = &types.JanusEvent{Event: "error", Payload: raw}
		if err := s.writeChunk(chunk); err != nil {
			return err
		}
		return s.writeDone()
	}
	return nil
}

// KeepAlive implements Sink with an SSE comment frame, which OpenAI clients
// ignore.
func (s *SSEWriter) KeepAlive() error {
	if _, err := fmt.Fprintf(s.w, ": keep-alive\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Degraded implements Sink.
func (s *SSEWriter) Degraded() error {
	return s.writeJanus("degraded", map[string]string{
		"reason": "sandbox unavailable, answered via fast path",
	})
}
