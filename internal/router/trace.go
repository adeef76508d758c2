package router

import (
	"time"

	"github.com/af-corp/janus-gateway/internal/types"
	"github.com/af-corp/janus-gateway/internal/usage"
)

// trace collects the per-request decision trail when debug tracing is on.
// Disabled traces cost one nil check per add.
type trace struct {
	reqID  string
	events []types.DebugEvent
}

func newTrace(reqID string, enabled bool) *trace {
	if !enabled {
		return nil
	}
	return &trace{reqID: reqID}
}

func (t *trace) add(event string, payload map[string]any) {
	if t == nil {
		return
	}
	t.events = append(t.events, types.DebugEvent{
		RequestID: t.reqID,
		Timestamp: time.Now().UnixMilli(),
		Event:     event,
		Payload:   payload,
	})
}

func (t *trace) flush(store *usage.Store) {
	if t == nil || store == nil {
		return
	}
	store.InsertDebugEvents(t.events)
}
