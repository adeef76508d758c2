package types

import "encoding/json"

// ChatResponse is the non-streaming OpenAI chat-completion shape, augmented
// with reasoning_content and artifacts on the message and a degraded marker
// when the agent path fell back to the fast path.
type ChatResponse struct {
	ID       string   `json:"id"`
	Object   string   `json:"object"`
	Created  int64    `json:"created"`
	Model    string   `json:"model"`
	Choices  []Choice `json:"choices"`
	Usage    Usage    `json:"usage"`
	Degraded bool     `json:"degraded,omitempty"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type ResponseMessage struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	Artifacts        []Artifact `json:"artifacts,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatChunk is one streaming frame in the OpenAI delta shape, extended by
// the optional janus field for tool/sandbox lifecycle notifications.
type ChatChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Janus   *JanusEvent   `json:"janus,omitempty"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role             string `json:"role,omitempty"`
	Content          string `json:"content,omitempty"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// JanusEvent rides on a chunk to notify clients of out-of-band lifecycle
// events: tool_start, tool_end, artifact, degraded, error.
type JanusEvent struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DebugEvent is an optional diagnostic record used to reconstruct the
// per-request state-machine trace. Never required for correctness.
type DebugEvent struct {
	RequestID string         `json:"request_id"`
	Timestamp int64          `json:"timestamp"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
}
