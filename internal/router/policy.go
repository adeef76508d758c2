package router

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/af-corp/janus-gateway/internal/config"
)

// PolicyInput is the data handed to OPA when deciding whether a request may
// take the agent path.
type PolicyInput struct {
	User    PolicyUser `json:"user"`
	Request PolicyReq  `json:"request"`
	Time    PolicyTime `json:"time"`
}

type PolicyUser struct {
	ID       string `json:"id"`
	APIKeyID string `json:"api_key_id"`
}

type PolicyReq struct {
	Model  string `json:"model"`
	Reason string `json:"reason"`
}

type PolicyTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Policy gates agent-path routing through OPA. When disabled or when no
// modules are loaded the agent path is always allowed; policy only narrows.
type Policy struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.RoutingConfig
}

func NewPolicy(cfg func() config.RoutingConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Load compiles the Rego modules under the configured path.
func (p *Policy) Load() error {
	cfg := p.cfg()
	modules, err := loadRegoFiles(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.PolicyPath)
		return nil
	}
	return p.LoadFromModules(modules)
}

// LoadFromModules compiles policies from in-memory sources.
func (p *Policy) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){
		rego.Query("data.janus.routing.allow_agent"),
	}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	p.mu.Lock()
	p.prepared = &prepared
	p.mu.Unlock()

	slog.Info("routing policies loaded", "modules", len(modules))
	return nil
}

// AllowAgent reports whether the agent path is permitted for this request.
// Evaluation errors fail open: routing policy is advisory, never a reason to
// break a request.
func (p *Policy) AllowAgent(ctx context.Context, input PolicyInput) bool {
	cfg := p.cfg()
	if !cfg.PolicyEnabled {
		return true
	}

	p.mu.RLock()
	prepared := p.prepared
	p.mu.RUnlock()
	if prepared == nil {
		return true
	}

	timeout := cfg.PolicyTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		slog.Error("routing policy evaluation failed", "error", err)
		return true
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return true
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return true
	}
	return allowed
}

func loadRegoFiles(dir string) (map[string]string, error) {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
