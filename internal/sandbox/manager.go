package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/telemetry"
)

// ErrUnavailable means no sandbox could be acquired: pool exhausted, breaker
// open, or the retry budget spent. The router falls back to the fast path and
// marks the response degraded.
var ErrUnavailable = errors.New("sandbox unavailable")

const terminateTimeout = 10 * time.Second

// Manager owns the bounded pool of sandbox sessions.
type Manager struct {
	cfg     func() config.SandboxConfig
	prov    API
	slots   chan struct{}
	breaker *CircuitBreaker
	metrics *telemetry.Metrics
}

// NewManager builds a manager. metrics may be nil.
func NewManager(cfg func() config.SandboxConfig, prov API, metrics *telemetry.Metrics) *Manager {
	c := cfg()
	poolSize := c.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	return &Manager{
		cfg:     cfg,
		prov:    prov,
		slots:   make(chan struct{}, poolSize),
		breaker: NewCircuitBreaker(c.Breaker.FailureThreshold, c.Breaker.RecoveryProbeInterval),
		metrics: metrics,
	}
}

// Provisioner exposes the control plane for the agent-path executor.
func (m *Manager) Provisioner() API { return m.prov }

// Acquire provisions a sandbox session. Acquisition beyond pool capacity
// waits at most the configured bound, then fails fast with ErrUnavailable.
// Retryable creation failures are retried with exponential backoff up to the
// retry budget.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	cfg := m.cfg()
	start := time.Now()

	if !m.breaker.Allow() {
		slog.Warn("sandbox breaker open, skipping acquisition")
		return nil, ErrUnavailable
	}

	waitTimer := time.NewTimer(cfg.AcquireWait)
	defer waitTimer.Stop()
	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-waitTimer.C:
		slog.Warn("sandbox pool exhausted", "pool_size", cfg.PoolSize, "waited", cfg.AcquireWait)
		return nil, ErrUnavailable
	}

	session, err := m.createWithRetry(ctx, cfg)
	if err != nil {
		<-m.slots
		m.breaker.RecordFailure()
		if m.metrics != nil {
			m.metrics.RecordSandboxFailure("create")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, errors.Join(ErrUnavailable, err)
	}

	m.breaker.RecordSuccess()
	if m.metrics != nil {
		m.metrics.SandboxInUse.Inc()
		m.metrics.SandboxAcquireMs.Observe(float64(time.Since(start).Milliseconds()))
	}

	// Hard deadline: force-terminate regardless of in-flight work.
	session.deadlineTimer = time.AfterFunc(time.Until(session.Deadline), func() {
		slog.Warn("sandbox hard timeout elapsed, force terminating",
			"session_id", session.ID, "timeout", cfg.Timeout)
		session.markTimedOut()
		if m.metrics != nil {
			m.metrics.RecordSandboxFailure("timeout")
		}
		m.Release(session)
	})

	slog.Info("sandbox acquired",
		"session_id", session.ID,
		"endpoint", session.Endpoint,
		"deadline", session.Deadline,
		"acquire_ms", time.Since(start).Milliseconds(),
	)
	return session, nil
}

func (m *Manager) createWithRetry(ctx context.Context, cfg config.SandboxConfig) (*Session, error) {
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	backoff := cfg.RetryBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		id, endpoint, err := m.prov.Create(ctx, cfg.Timeout)
		if err == nil {
			session := newSession(id, endpoint, time.Now().Add(cfg.Timeout))
			session.markReady()
			return session, nil
		}
		lastErr = err

		var createErr *CreateError
		retryable := errors.As(err, &createErr) && createErr.Retryable()
		slog.Warn("sandbox creation failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"retryable", retryable,
			"error", err,
		)
		if !retryable || attempt == attempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

// Release tears down a session and frees its pool slot. Idempotent and always
// safe to call; every exception path must reach it exactly once, which the
// session's internal once-guard enforces.
func (m *Manager) Release(session *Session) {
	if session == nil {
		return
	}
	session.releaseOnce.Do(func() {
		if session.deadlineTimer != nil {
			session.deadlineTimer.Stop()
		}
		session.transition(StateTerminating)

		ctx, cancel := context.WithTimeout(context.Background(), terminateTimeout)
		defer cancel()
		if err := m.prov.Terminate(ctx, session.ID); err != nil {
			slog.Error("sandbox termination failed", "session_id", session.ID, "error", err)
			session.markFailed()
			if m.metrics != nil {
				m.metrics.RecordSandboxFailure("terminate")
			}
		} else {
			session.transition(StateTerminated)
		}

		<-m.slots
		if m.metrics != nil {
			m.metrics.SandboxInUse.Dec()
		}
		slog.Info("sandbox released", "session_id", session.ID, "state", session.State())
	})
}
