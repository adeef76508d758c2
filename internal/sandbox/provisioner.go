package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/types"
)

// API is the sandbox-provisioning control plane: create, run-agent, terminate.
type API interface {
	Create(ctx context.Context, timeout time.Duration) (id, endpoint string, err error)
	RunAgent(ctx context.Context, sessionID string, params AgentRunParams) (io.ReadCloser, error)
	Terminate(ctx context.Context, sessionID string) error
}

// AgentRunParams is the payload handed to the agent process inside a sandbox.
type AgentRunParams struct {
	Model    string                 `json:"model"`
	Messages []types.Message        `json:"messages"`
	Flags    *types.GenerationFlags `json:"generation_flags,omitempty"`
}

// CreateError is a failed sandbox creation. Status 0 means a transport error.
type CreateError struct {
	Status int
	Body   string
}

func (e *CreateError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("sandbox create: %s", e.Body)
	}
	return fmt.Sprintf("sandbox create: status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the creation failure is worth retrying:
// transport errors, capacity (429), and provisioner-side errors (5xx).
func (e *CreateError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Provisioner is the HTTP/JSON client for the sandbox-provisioning service.
type Provisioner struct {
	cfg    func() config.SandboxConfig
	client *http.Client
}

func NewProvisioner(cfg func() config.SandboxConfig) *Provisioner {
	return &Provisioner{
		cfg: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (p *Provisioner) url(path string) string {
	return strings.TrimSuffix(p.cfg().ProvisionerURL, "/") + path
}

func (p *Provisioner) setAuth(req *http.Request) {
	if key := p.cfg().APIKey; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

// Create provisions a new sandbox with the given hard timeout.
func (p *Provisioner) Create(ctx context.Context, timeout time.Duration) (string, string, error) {
	body, _ := json.Marshal(map[string]any{
		"timeout_seconds": int(timeout.Seconds()),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url("/v1/sandboxes"), bytes.NewReader(body))
	if err != nil {
		return "", "", &CreateError{Body: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	p.setAuth(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", "", &CreateError{Body: err.Error()}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", "", &CreateError{Status: resp.StatusCode, Body: string(data)}
	}

	var created struct {
		ID       string `json:"id"`
		Endpoint string `json:"endpoint"`
	}
	if err := json.Unmarshal(data, &created); err != nil {
		return "", "", &CreateError{Status: resp.StatusCode, Body: "invalid create response: " + err.Error()}
	}
	if created.ID == "" {
		return "", "", &CreateError{Status: resp.StatusCode, Body: "create response missing id"}
	}
	return created.ID, created.Endpoint, nil
}

// RunAgent starts the tool-using agent inside a sandbox and returns its
// structured output stream (JSON lines). The caller owns the reader.
func (p *Provisioner) RunAgent(ctx context.Context, sessionID string, params AgentRunParams) (io.ReadCloser, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal agent run params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url("/v1/sandboxes/"+sessionID+"/agent"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create agent run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")
	p.setAuth(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent run request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("agent run returned status %d: %s", resp.StatusCode, string(data))
	}
	return resp.Body, nil
}

// Terminate tears down a sandbox. Safe to call on an already-terminated id;
// the provisioner treats unknown ids as gone.
func (p *Provisioner) Terminate(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.url("/v1/sandboxes/"+sessionID), nil)
	if err != nil {
		return fmt.Errorf("create terminate request: %w", err)
	}
	p.setAuth(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("terminate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("terminate returned status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
