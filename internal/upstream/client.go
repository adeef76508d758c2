// Package upstream is the client for the OpenAI-compatible model endpoint
// used by the fast path, the classifier verification call, and memory
// extraction.
package upstream

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

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	cfg    func() config.UpstreamConfig
	client *http.Client
}

func NewClient(cfg func() config.UpstreamConfig) *Client {
	c := cfg()
	return &Client{
		cfg: cfg,
		client: &http.Client{
			// No global timeout: streaming responses outlive any sane value.
			// Per-call deadlines come from the request context.
			Transport: &http.Transport{
				MaxIdleConns:        c.MaxConcurrent,
				MaxIdleConnsPerHost: c.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
	}
}

// ChatParams is the outbound completion request body.
type ChatParams struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

// Completion is a parsed non-streaming completion.
type Completion struct {
	Content          string
	ReasoningContent string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

func (c *Client) newRequest(ctx context.Context, params ChatParams) (*http.Request, error) {
	cfg := c.cfg()

	data, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}

	url := strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	for k, v := range cfg.Headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return req, nil
}

// ChatCompletion issues a non-streaming completion.
func (c *Client) ChatCompletion(ctx context.Context, params ChatParams) (*Completion, error) {
	params.Stream = false

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg().Timeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed completionBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal upstream response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("upstream response has no choices")
	}

	ch := parsed.Choices[0]
	return &Completion{
		Content:          ch.Message.Content,
		ReasoningContent: ch.Message.ReasoningContent,
		FinishReason:     ch.FinishReason,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// StreamChat issues a streaming completion and returns the raw SSE response.
// The caller owns the body and must close it.
func (c *Client) StreamChat(ctx context.Context, params ChatParams) (*http.Response, error) {
	params.Stream = true

	req, err := c.newRequest(ctx, params)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream stream request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

const verifySystemPrompt = `You are a routing classifier. Decide whether the conversation requires an autonomous agent with tool access (code execution, file manipulation, web browsing, research, media generation) or can be answered directly from model knowledge. Respond with strict JSON and nothing else: {"needs_agent": true} or {"needs_agent": false}.`

// VerifyNeedsAgent asks the verification model the binary routing question.
// The full conversation history is forwarded; the verdict is parsed from a
// strict-JSON reply.
func (c *Client) VerifyNeedsAgent(ctx context.Context, model string, messages []types.Message) (bool, error) {
	verifyMessages := make([]types.Message, 0, len(messages)+1)
	verifyMessages = append(verifyMessages, types.Message{
		Role:    "system",
		Content: types.TextContent(verifySystemPrompt),
	})
	verifyMessages = append(verifyMessages, messages...)

	maxTokens := 16
	completion, err := c.ChatCompletion(ctx, ChatParams{
		Model:     model,
		Messages:  verifyMessages,
		MaxTokens: &maxTokens,
	})
	if err != nil {
		return false, err
	}

	return parseVerdict(completion.Content)
}

func parseVerdict(content string) (bool, error) {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var verdict struct {
		NeedsAgent bool `json:"needs_agent"`
	}
	if err := json.Unmarshal([]byte(trimmed), &verdict); err != nil {
		return false, fmt.Errorf("parse verifier verdict %q: %w", content, err)
	}
	return verdict.NeedsAgent, nil
}

type completionBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role             string `json:"role"`
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
