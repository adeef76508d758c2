package stream

import (
	"github.com/af-corp/janus-gateway/internal/types"
)

// Sink is the transport side of the multiplexer: an SSE writer for streaming
// requests, a Collector for non-streaming ones.
type Sink interface {
	// Send relays one event. The multiplexer guarantees ordering and that
	// no event follows the terminal one.
	Send(ev types.StreamEvent) error
	// KeepAlive emits an idle frame so intermediaries do not time out the
	// connection. Never counts as content.
	KeepAlive() error
	// Degraded announces that the agent path fell back to the fast path.
	Degraded() error
}

// Collector is the Sink for non-streaming requests: it aggregates the event
// stream into the final ChatResponse fields.
type Collector struct {
	Content      []byte
	Reasoning    []byte
	Artifacts    []types.Artifact
	FinishReason types.FinishReason
	ErrKind      types.ErrorKind
	ErrMessage   string
	IsDegraded   bool
}

func NewCollector() *Collector { return &Collector{} }

func (c *Collector) Send(ev types.StreamEvent) error {
	switch ev.Type {
	case types.EventContentDelta:
		c.Content = append(c.Content, ev.Text...)
	case types.EventReasoningDelta:
		c.Reasoning = append(c.Reasoning, ev.Text...)
	case types.EventArtifact:
		if ev.Artifact != nil {
			c.Artifacts = append(c.Artifacts, *ev.Artifact)
		}
	case types.EventDone:
		c.FinishReason = ev.FinishReason
	case types.EventError:
		c.FinishReason = types.FinishError
		if ev.ErrKind == types.ErrKindSandboxTimeout {
			c.FinishReason = types.FinishTimeout
		}
		c.ErrKind = ev.ErrKind
		c.ErrMessage = ev.ErrMessage
	}
	return nil
}

func (c *Collector) KeepAlive() error { return nil }

func (c *Collector) Degraded() error {
	c.IsDegraded = true
	return nil
}

// Failed reports whether the stream ended with a terminal error.
func (c *Collector) Failed() bool { return c.ErrKind != "" }
