// Package executor holds the two execution paths behind a single capability
// interface: the fast path (direct model completion) and the agent path
// (tool-using agent inside a sandbox).
package executor

import (
	"context"
	"io"

	"github.com/af-corp/janus-gateway/internal/types"
)

// Executor runs one routed request and emits its ordered event stream.
// Implementations emit exactly one terminal event (done or error) and then
// close the channel. A canceled context may close the channel without a
// terminal event; nobody is listening in that case.
type Executor interface {
	Execute(ctx context.Context, req *types.ChatRequest) <-chan types.StreamEvent
}

// ArtifactStore is the slice of the artifact manager the executors need.
type ArtifactStore interface {
	Put(r io.Reader, mimeType, displayName string) (types.Artifact, error)
}
