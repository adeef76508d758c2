// Package memory extracts durable user facts from completed conversations
// and stores them for future personalization. Extraction is strictly
// fire-and-forget: it runs after the terminal event has been sent and its
// failures are logged, never surfaced.
package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/types"
	"github.com/af-corp/janus-gateway/internal/upstream"
)

const extractPrompt = `Extract at most 5 durable facts about the user from this conversation: stable preferences, recurring projects, expertise. Ignore one-off requests. Respond with strict JSON: {"memories": [{"key": "...", "value": "..."}]}. Respond {"memories": []} if nothing qualifies.`

// Store persists extracted user memories.
type Store interface {
	Upsert(ctx context.Context, userID, key, value string) error
	Recall(ctx context.Context, userID string, limit int) (map[string]string, error)
}

// Extractor asks the upstream model for user facts worth remembering and
// upserts them through the Store. A nil store disables persistence.
type Extractor struct {
	cfg      func() config.MemoryConfig
	upstream *upstream.Client
	store    Store
}

func NewExtractor(cfg func() config.MemoryConfig, client *upstream.Client, store Store) *Extractor {
	return &Extractor{cfg: cfg, upstream: client, store: store}
}

// ExtractAsync launches extraction in the background for one finished
// conversation. Returns immediately.
func (e *Extractor) ExtractAsync(requestID, userID string, messages []types.Message, assistantReply string) {
	cfg := e.cfg()
	if !cfg.Enabled || e.store == nil || userID == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
		defer cancel()
		if err := e.extract(ctx, cfg, userID, messages, assistantReply); err != nil {
			slog.Warn("memory extraction failed",
				"request_id", requestID, "user_id", userID, "error", err)
		}
	}()
}

func (e *Extractor) extract(ctx context.Context, cfg config.MemoryConfig, userID string, messages []types.Message, assistantReply string) error {
	convo := make([]types.Message, 0, len(messages)+2)
	convo = append(convo, types.Message{
		Role:    "system",
		Content: types.TextContent(extractPrompt),
	})
	convo = append(convo, messages...)
	if assistantReply != "" {
		convo = append(convo, types.Message{
			Role:    "assistant",
			Content: types.TextContent(assistantReply),
		})
	}

	completion, err := e.upstream.ChatCompletion(ctx, upstream.ChatParams{
		Model:    cfg.Model,
		Messages: convo,
	})
	if err != nil {
		return err
	}

	var parsed struct {
		Memories []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"memories"`
	}
	raw := strings.TrimSpace(completion.Content)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &parsed); err != nil {
		return err
	}

	for _, m := range parsed.Memories {
		if m.Key == "" || m.Value == "" {
			continue
		}
		if err := e.store.Upsert(ctx, userID, m.Key, m.Value); err != nil {
			return err
		}
	}
	return nil
}

// Recall loads the user's stored memories, most recently updated first.
// The router injects them into the prompt when the request opts in.
func (e *Extractor) Recall(ctx context.Context, userID string, limit int) (map[string]string, error) {
	if !e.cfg().Enabled || e.store == nil || userID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return e.store.Recall(ctx, userID, limit)
}
