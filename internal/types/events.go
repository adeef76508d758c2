package types

// EventType discriminates the StreamEvent union.
type EventType string

const (
	EventContentDelta   EventType = "content_delta"
	EventReasoningDelta EventType = "reasoning_delta"
	EventToolStart      EventType = "tool_start"
	EventToolEnd        EventType = "tool_end"
	EventArtifact       EventType = "artifact"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// FinishReason is carried by the terminal done event.
type FinishReason string

const (
	FinishStop    FinishReason = "stop"
	FinishLength  FinishReason = "length"
	FinishError   FinishReason = "error"
	FinishTimeout FinishReason = "timeout"
)

// ErrorKind is the machine-readable failure taxonomy.
type ErrorKind string

const (
	ErrKindClassifierTimeout    ErrorKind = "classifier_timeout"
	ErrKindSandboxUnavailable   ErrorKind = "sandbox_unavailable"
	ErrKindSandboxTimeout       ErrorKind = "sandbox_timeout"
	ErrKindUpstreamDisconnect   ErrorKind = "upstream_disconnect"
	ErrKindArtifactStoreFailure ErrorKind = "artifact_store_failure"
	ErrKindInvalidRequest       ErrorKind = "invalid_request"
	ErrKindInternal             ErrorKind = "internal"
)

// StreamEvent is one element of an executor's ordered event stream. Every
// event carries the correlation id of its request. The multiplexer
// guarantees exactly one terminal event (done or error) per request.
type StreamEvent struct {
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id"`

	// content_delta / reasoning_delta
	Text string `json:"text,omitempty"`

	// tool_start / tool_end
	ToolName   string         `json:"tool_name,omitempty"`
	ToolMeta   map[string]any `json:"tool_meta,omitempty"`
	ToolResult string         `json:"tool_result,omitempty"`

	// artifact
	Artifact *Artifact `json:"artifact,omitempty"`

	// done
	FinishReason FinishReason `json:"finish_reason,omitempty"`

	// error
	ErrKind    ErrorKind `json:"err_kind,omitempty"`
	ErrMessage string    `json:"err_message,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

func ContentDelta(reqID, text string) StreamEvent {
	return StreamEvent{Type: EventContentDelta, RequestID: reqID, Text: text}
}

func ReasoningDelta(reqID, text string) StreamEvent {
	return StreamEvent{Type: EventReasoningDelta, RequestID: reqID, Text: text}
}

func ToolStart(reqID, name string, meta map[string]any) StreamEvent {
	return StreamEvent{Type: EventToolStart, RequestID: reqID, ToolName: name, ToolMeta: meta}
}

func ToolEnd(reqID, name, result string) StreamEvent {
	return StreamEvent{Type: EventToolEnd, RequestID: reqID, ToolName: name, ToolResult: result}
}

func ArtifactEvent(reqID string, a *Artifact) StreamEvent {
	return StreamEvent{Type: EventArtifact, RequestID: reqID, Artifact: a}
}

func Done(reqID string, reason FinishReason) StreamEvent {
	return StreamEvent{Type: EventDone, RequestID: reqID, FinishReason: reason}
}

func ErrorEvent(reqID string, kind ErrorKind, message string) StreamEvent {
	return StreamEvent{Type: EventError, RequestID: reqID, ErrKind: kind, ErrMessage: message}
}
