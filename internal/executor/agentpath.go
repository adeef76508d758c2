package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/af-corp/janus-gateway/internal/sandbox"
	"github.com/af-corp/janus-gateway/internal/types"
)

// AgentPath drives a tool-using agent run inside an already-acquired sandbox
// session and translates its NDJSON event stream into StreamEvents. The
// caller owns the session lifecycle; this executor only attaches to it.
type AgentPath struct {
	session       *sandbox.Session
	prov          sandbox.API
	store         ArtifactStore
	upstreamModel string
}

func NewAgentPath(session *sandbox.Session, prov sandbox.API, store ArtifactStore, upstreamModel string) *AgentPath {
	return &AgentPath{
		session:       session,
		prov:          prov,
		store:         store,
		upstreamModel: upstreamModel,
	}
}

func (a *AgentPath) Execute(ctx context.Context, req *types.ChatRequest) <-chan types.StreamEvent {
	out := make(chan types.StreamEvent, 16)
	go a.run(ctx, req, out)
	return out
}

// agentEvent is one NDJSON line from the sandbox agent runtime.
type agentEvent struct {
	Type         string         `json:"type"`
	Text         string         `json:"text,omitempty"`
	Tool         string         `json:"tool,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	Result       string         `json:"result,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Message      string         `json:"message,omitempty"`
	File         *agentFile     `json:"file,omitempty"`
}

type agentFile struct {
	Name          string `json:"name"`
	MimeType      string `json:"mime_type"`
	ContentBase64 string `json:"content_base64"`
}

func (a *AgentPath) run(ctx context.Context, req *types.ChatRequest, out chan<- types.StreamEvent) {
	defer close(out)
	reqID := req.RequestID

	// Bound the run by the session's hard deadline so a runaway agent is cut
	// off even if the sandbox runtime ignores its own clock.
	runCtx, cancel := context.WithDeadline(ctx, a.session.Deadline)
	defer cancel()

	emit := func(ev types.StreamEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	body, err := a.prov.RunAgent(runCtx, a.session.ID, sandbox.AgentRunParams{
		Model:    a.upstreamModel,
		Messages: req.Messages,
		Flags:    req.GenerationFlags,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if a.session.TimedOut() || runCtx.Err() == context.DeadlineExceeded {
			emit(types.ErrorEvent(reqID, types.ErrKindSandboxTimeout, "sandbox session exceeded its time limit"))
			return
		}
		slog.Error("agent run failed to start",
			"request_id", reqID, "session_id", a.session.ID, "error", err)
		emit(types.ErrorEvent(reqID, types.ErrKindInternal, "agent run failed to start"))
		return
	}
	defer body.Close()

	if !a.session.Attach() {
		slog.Error("session attach failed",
			"request_id", reqID, "session_id", a.session.ID, "state", a.session.State())
		emit(types.ErrorEvent(reqID, types.ErrKindInternal, "sandbox session unusable"))
		return
	}

	// Artifact persistence runs off the relay path; the artifact event is
	// only emitted after the blob is durably stored. All stores settle
	// before the terminal event.
	var wg sync.WaitGroup
	defer wg.Wait()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lastReasoning := ""
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev agentEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Warn("agent path: skipping malformed event",
				"request_id", reqID, "session_id", a.session.ID, "error", err)
			continue
		}

		switch ev.Type {
		case "content":
			if !emit(types.ContentDelta(reqID, ev.Text)) {
				return
			}

		case "reasoning":
			// Agent runtimes re-emit the current reasoning line as a
			// heartbeat while a tool is busy. Forward each distinct line
			// once.
			trimmed := strings.TrimSpace(ev.Text)
			if trimmed != "" && trimmed == lastReasoning {
				continue
			}
			lastReasoning = trimmed
			if !emit(types.ReasoningDelta(reqID, ev.Text)) {
				return
			}

		case "tool_start":
			if !emit(types.ToolStart(reqID, ev.Tool, ev.Meta)) {
				return
			}

		case "tool_end":
			if !emit(types.ToolEnd(reqID, ev.Tool, ev.Result)) {
				return
			}

		case "file":
			if ev.File == nil {
				continue
			}
			wg.Add(1)
			go a.storeFile(ctx, reqID, ev.File, emit, &wg)

		case "done":
			wg.Wait()
			reason := types.FinishStop
			if ev.FinishReason == string(types.FinishLength) {
				reason = types.FinishLength
			}
			emit(types.Done(reqID, reason))
			return

		case "error":
			wg.Wait()
			slog.Error("agent reported error",
				"request_id", reqID, "session_id", a.session.ID, "message", ev.Message)
			emit(types.ErrorEvent(reqID, types.ErrKindInternal, ev.Message))
			return

		default:
			slog.Debug("agent path: ignoring unknown event type",
				"request_id", reqID, "type", ev.Type)
		}
	}

	// Stream ended without a done event.
	wg.Wait()
	if ctx.Err() != nil {
		return
	}
	if a.session.TimedOut() || runCtx.Err() == context.DeadlineExceeded {
		emit(types.ErrorEvent(reqID, types.ErrKindSandboxTimeout, "sandbox session exceeded its time limit"))
		return
	}
	msg := "agent stream ended unexpectedly"
	if err := scanner.Err(); err != nil {
		msg = "agent stream error: " + err.Error()
	}
	slog.Error("agent stream disconnect",
		"request_id", reqID, "session_id", a.session.ID, "message", msg)
	emit(types.ErrorEvent(reqID, types.ErrKindUpstreamDisconnect, msg))
}

func (a *AgentPath) storeFile(ctx context.Context, reqID string, f *agentFile, emit func(types.StreamEvent) bool, wg *sync.WaitGroup) {
	defer wg.Done()

	raw, err := base64.StdEncoding.DecodeString(f.ContentBase64)
	if err != nil {
		slog.Error("artifact decode failed",
			"request_id", reqID, "name", f.Name, "error", err)
		return
	}

	art, err := a.store.Put(bytes.NewReader(raw), f.MimeType, f.Name)
	if err != nil {
		// Store failures omit the artifact; the run itself completes.
		slog.Error("artifact store failed",
			"request_id", reqID, "name", f.Name, "error", err)
		return
	}
	if ctx.Err() != nil {
		return
	}
	emit(types.ArtifactEvent(reqID, &art))
}
