package sandbox

import (
	"sync"
	"time"
)

// SessionState is the liveness status of a sandbox session.
type SessionState string

const (
	StateStarting    SessionState = "starting"
	StateReady       SessionState = "ready"
	StateRunning     SessionState = "running"
	StateTerminating SessionState = "terminating"
	StateTerminated  SessionState = "terminated"
	StateFailed      SessionState = "failed"
)

// Session is one isolated execution environment. Owned exclusively by the
// Manager; the agent-path executor borrows it for the request's lifetime and
// never outlives it.
type Session struct {
	ID        string
	Endpoint  string
	CreatedAt time.Time
	Deadline  time.Time

	mu       sync.Mutex
	state    SessionState
	timedOut bool

	deadlineTimer *time.Timer
	releaseOnce   sync.Once
}

func newSession(id, endpoint string, deadline time.Time) *Session {
	return &Session{
		ID:        id,
		Endpoint:  endpoint,
		CreatedAt: time.Now(),
		Deadline:  deadline,
		state:     StateStarting,
	}
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves the session to a new state if the move is legal.
// failed is absorbing; terminated is terminal.
func (s *Session) transition(to SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFailed || s.state == StateTerminated {
		return false
	}

	legal := map[SessionState][]SessionState{
		StateStarting:    {StateReady, StateFailed, StateTerminating},
		StateReady:       {StateRunning, StateFailed, StateTerminating},
		StateRunning:     {StateTerminating, StateFailed},
		StateTerminating: {StateTerminated, StateFailed},
	}
	for _, next := range legal[s.state] {
		if next == to {
			s.state = to
			return true
		}
	}
	return false
}

func (s *Session) markReady() bool { return s.transition(StateReady) }

// Attach marks the session running. Called by the agent-path executor when
// it starts relaying the agent's output.
func (s *Session) Attach() bool { return s.transition(StateRunning) }

func (s *Session) markFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTerminated {
		s.state = StateFailed
	}
}

// markTimedOut flags that the hard deadline elapsed. Checked by the executor
// to distinguish sandbox_timeout from other stream failures.
func (s *Session) markTimedOut() {
	s.mu.Lock()
	s.timedOut = true
	s.mu.Unlock()
}

// TimedOut reports whether the hard session deadline force-terminated the
// sandbox.
func (s *Session) TimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timedOut
}
