// Package gateway implements the inbound HTTP surface: the OpenAI-compatible
// chat completions endpoint and the model listing.
package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/af-corp/janus-gateway/internal/auth"
	"github.com/af-corp/janus-gateway/internal/config"
	"github.com/af-corp/janus-gateway/internal/httputil"
	"github.com/af-corp/janus-gateway/internal/router"
	"github.com/af-corp/janus-gateway/internal/stream"
	"github.com/af-corp/janus-gateway/internal/types"
)

const maxBodyBytes = 10 << 20

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	router    *router.Router
	modelsCfg func() config.ModelsConfig
}

func NewHandler(rt *router.Router, modelsCfg func() config.ModelsConfig) *Handler {
	return &Handler{router: rt, modelsCfg: modelsCfg}
}

// ChatCompletions handles POST /v1/chat/completions
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req types.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}

	if req.Model == "" {
		httputil.WriteBadRequestError(w, reqID, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		httputil.WriteBadRequestError(w, reqID, "messages is required")
		return
	}
	for i, m := range req.Messages {
		switch m.Role {
		case "system", "user", "assistant", "tool":
		default:
			httputil.WriteBadRequestError(w, reqID, "messages["+strconv.Itoa(i)+"]: invalid role")
			return
		}
	}

	modelsCfg := h.modelsCfg()
	if len(modelsCfg.Models) > 0 {
		if _, ok := modelsCfg.Models[req.Model]; !ok {
			httputil.WriteNotFoundError(w, reqID, "The model '"+req.Model+"' does not exist")
			return
		}
	}

	req.RequestID = reqID
	req.ReceivedAt = receivedAt
	if info, ok := auth.AuthFromContext(r.Context()); ok {
		req.APIKeyID = info.KeyID
		if req.UserID == "" {
			req.UserID = info.UserID
		}
		if len(info.AllowedModels) > 0 && !contains(info.AllowedModels, req.Model) {
			httputil.WriteError(w, reqID, http.StatusForbidden,
				"invalid_request_error", "model_not_allowed",
				"API key is not permitted to use model '"+req.Model+"'")
			return
		}
	}

	if req.Stream {
		h.handleStream(w, r, &req)
		return
	}
	h.handleBlocking(w, r, &req)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request, req *types.ChatRequest) {
	sse, err := stream.NewSSEWriter(w, req.RequestID, req.Model)
	if err != nil {
		httputil.WriteInternalError(w, req.RequestID, "Streaming not supported")
		return
	}

	result := h.router.Handle(r.Context(), req, sse)

	slog.Info("request completed",
		"request_id", req.RequestID,
		"model", req.Model,
		"path", result.Decision.Path,
		"finish_reason", result.Stats.FinishReason,
		"degraded", result.Degraded,
		"canceled", result.Stats.Canceled,
		"duration_ms", time.Since(req.ReceivedAt).Milliseconds(),
		"stream", true,
	)
}

func (h *Handler) handleBlocking(w http.ResponseWriter, r *http.Request, req *types.ChatRequest) {
	col := stream.NewCollector()
	result := h.router.Handle(r.Context(), req, col)

	slog.Info("request completed",
		"request_id", req.RequestID,
		"model", req.Model,
		"path", result.Decision.Path,
		"finish_reason", result.Stats.FinishReason,
		"degraded", result.Degraded,
		"canceled", result.Stats.Canceled,
		"duration_ms", time.Since(req.ReceivedAt).Milliseconds(),
		"stream", false,
	)

	if result.Stats.Canceled {
		return
	}
	if col.Failed() {
		h.writeStreamFailure(w, req.RequestID, col)
		return
	}

	promptTokens := approxTokens(req.Messages)
	completionTokens := (len(col.Content) + 3) / 4

	resp := types.ChatResponse{
		ID:      "chatcmpl-" + req.RequestID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []types.Choice{{
			Index: 0,
			Message: types.ResponseMessage{
				Role:             "assistant",
				Content:          string(col.Content),
				ReasoningContent: string(col.Reasoning),
				Artifacts:        col.Artifacts,
			},
			FinishReason: string(col.FinishReason),
		}},
		Usage: types.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		Degraded: result.Degraded,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) writeStreamFailure(w http.ResponseWriter, reqID string, col *stream.Collector) {
	msg := col.ErrMessage
	if msg == "" {
		msg = "request failed"
	}
	switch col.ErrKind {
	case types.ErrKindSandboxTimeout:
		httputil.WriteError(w, reqID, http.StatusGatewayTimeout,
			"server_error", string(col.ErrKind), msg)
	case types.ErrKindUpstreamDisconnect:
		httputil.WriteError(w, reqID, http.StatusBadGateway,
			"server_error", string(col.ErrKind), msg)
	case types.ErrKindSandboxUnavailable:
		httputil.WriteServiceUnavailableError(w, reqID, msg)
	default:
		httputil.WriteError(w, reqID, http.StatusInternalServerError,
			"server_error", string(col.ErrKind), msg)
	}
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	var allowed []string
	if info, ok := auth.AuthFromContext(r.Context()); ok {
		allowed = info.AllowedModels
	}

	modelsCfg := h.modelsCfg()
	models := make([]modelObject, 0, len(modelsCfg.Models))
	for name := range modelsCfg.Models {
		if len(allowed) > 0 && !contains(allowed, name) {
			continue
		}
		models = append(models, modelObject{
			ID:      name,
			Object:  "model",
			OwnedBy: "janus",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(modelListResponse{
		Object: "list",
		Data:   models,
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func approxTokens(messages []types.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Text())
	}
	if chars == 0 {
		return 0
	}
	return (chars + 3) / 4
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelListResponse struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}
