package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/af-corp/janus-gateway/internal/types"
)

// RelayStats summarizes one relayed stream for usage accounting.
type RelayStats struct {
	FinishReason types.FinishReason
	ErrKind      types.ErrorKind
	ContentChars int
	Events       int
	Canceled     bool
}

// Multiplexer relays exactly one executor's event stream to a sink in order,
// enforcing the terminal-event contract: at most one done/error is ever sent,
// it always carries a reason, and nothing follows it. Idle periods are bridged
// with keep-alive frames that never count as content.
type Multiplexer struct {
	KeepAliveInterval time.Duration
}

func NewMultiplexer(keepAlive time.Duration) *Multiplexer {
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	return &Multiplexer{KeepAliveInterval: keepAlive}
}

// Relay consumes events until the channel closes or ctx is canceled.
// If the channel closes without a terminal event, a terminal error(internal)
// is synthesized so the client never sees a stream that just stops.
func (m *Multiplexer) Relay(ctx context.Context, reqID string, events <-chan types.StreamEvent, sink Sink) RelayStats {
	var stats RelayStats
	terminalSent := false
	lastActivity := time.Now()

	ticker := time.NewTicker(m.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client gone; the shared context also cancels the executor.
			stats.Canceled = true
			return stats

		case <-ticker.C:
			if terminalSent {
				continue
			}
			if time.Since(lastActivity) >= m.KeepAliveInterval {
				if err := sink.KeepAlive(); err != nil {
					slog.Warn("keep-alive write failed", "request_id", reqID, "error", err)
					stats.Canceled = true
					return stats
				}
			}

		case ev, ok := <-events:
			if !ok {
				if !terminalSent {
					// The executor hung up without finishing its stream.
					slog.Error("event stream closed without terminal event", "request_id", reqID)
					synth := types.ErrorEvent(reqID, types.ErrKindInternal, "stream ended unexpectedly")
					if err := sink.Send(synth); err != nil {
						slog.Warn("synthesized terminal write failed",
							"request_id", reqID, "error", err)
					}
					stats.FinishReason = types.FinishError
					stats.ErrKind = types.ErrKindInternal
				}
				return stats
			}

			if terminalSent {
				slog.Warn("dropping event after terminal",
					"request_id", reqID, "type", ev.Type)
				continue
			}

			if err := sink.Send(ev); err != nil {
				slog.Warn("sink write failed", "request_id", reqID, "error", err)
				stats.Canceled = true
				return stats
			}
			lastActivity = time.Now()
			stats.Events++

			switch ev.Type {
			case types.EventContentDelta:
				stats.ContentChars += len(ev.Text)
			case types.EventDone:
				stats.FinishReason = ev.FinishReason
				terminalSent = true
			case types.EventError:
				stats.FinishReason = types.FinishError
				if ev.ErrKind == types.ErrKindSandboxTimeout {
					stats.FinishReason = types.FinishTimeout
				}
				stats.ErrKind = ev.ErrKind
				terminalSent = true
			}
		}
	}
}
