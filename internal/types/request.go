package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ChatRequest is the canonical internal representation of an incoming
// chat-completion request. The inbound body is OpenAI-compatible with the
// Janus extensions (generation_flags, user_id, enable_memory).
type ChatRequest struct {
	// Request content
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`

	// Janus extensions
	GenerationFlags *GenerationFlags `json:"generation_flags,omitempty"`
	UserID          string           `json:"user_id,omitempty"`
	EnableMemory    bool             `json:"enable_memory,omitempty"`

	// Internal tracking (set by the handler, never from the wire)
	RequestID  string    `json:"-"`
	APIKeyID   string    `json:"-"`
	ReceivedAt time.Time `json:"-"`
}

// GenerationFlags are explicit client hints that force the agent path.
type GenerationFlags struct {
	ForceImage        bool `json:"force_image,omitempty"`
	ForceVideo        bool `json:"force_video,omitempty"`
	ForceAudio        bool `json:"force_audio,omitempty"`
	ForceDeepResearch bool `json:"force_deep_research,omitempty"`
	ForceWebSearch    bool `json:"force_web_search,omitempty"`
}

// Any reports whether any generation flag is set.
func (f *GenerationFlags) Any() bool {
	if f == nil {
		return false
	}
	return f.ForceImage || f.ForceVideo || f.ForceAudio || f.ForceDeepResearch || f.ForceWebSearch
}

type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
	Name    string         `json:"name,omitempty"`
}

// Text returns the concatenated text of the message content.
func (m Message) Text() string {
	return m.Content.Text()
}

// MessageContent accepts both the plain-string form and the typed-part
// list form of the OpenAI content field.
type MessageContent struct {
	Parts []ContentPart
}

// ContentPart is one typed element of a multi-part message.
type ContentPart struct {
	Type string `json:"type"` // text | image_url | file | input_audio | video_url
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Text returns the concatenated text parts, ignoring binary parts.
func (c MessageContent) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	// Single text part marshals back to the plain-string form.
	if len(c.Parts) == 1 && c.Parts[0].Type == "text" {
		return json.Marshal(c.Parts[0].Text)
	}
	return json.Marshal(c.Parts)
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Parts = []ContentPart{{Type: "text", Text: s}}
		return nil
	}

	var raw []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		ImageURL *struct {
			URL string `json:"url"`
		} `json:"image_url"`
		VideoURL *struct {
			URL string `json:"url"`
		} `json:"video_url"`
		File *struct {
			URL  string `json:"url"`
			Name string `json:"name"`
		} `json:"file"`
		InputAudio *struct {
			Data string `json:"data"`
		} `json:"input_audio"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("content must be a string or an array of parts: %w", err)
	}

	c.Parts = make([]ContentPart, 0, len(raw))
	for _, p := range raw {
		part := ContentPart{Type: p.Type, Text: p.Text}
		switch {
		case p.ImageURL != nil:
			part.URL = p.ImageURL.URL
		case p.VideoURL != nil:
			part.URL = p.VideoURL.URL
		case p.File != nil:
			part.URL = p.File.URL
		}
		c.Parts = append(c.Parts, part)
	}
	return nil
}

// TextContent builds a single-part text content. Convenience for tests and
// internally constructed messages.
func TextContent(s string) MessageContent {
	return MessageContent{Parts: []ContentPart{{Type: "text", Text: s}}}
}

// LatestUserText returns the text of the most recent user message, or ""
// if the history contains no user turn.
func LatestUserText(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Text()
		}
	}
	return ""
}
