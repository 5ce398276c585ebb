package llm

import "encoding/json"

// ChatRequest is the normalized form of a provider chat request.
type ChatRequest struct {
	// Model name as requested, e.g. "gpt-4o" or "openai:gpt-4o" for routers.
	Model string `json:"model"`

	Messages []Message `json:"messages"`

	Stream *bool `json:"stream,omitempty"`

	// System prompt for providers that carry it outside the message list.
	System any `json:"system,omitempty"`

	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        *int     `json:"seed,omitempty"`

	// Extra holds provider-specific parameters with no common mapping.
	Extra map[string]any `json:"extra,omitempty"`

	RawRequest json.RawMessage `json:"raw_request,omitempty"`
}

// AllMessages returns the request messages with a string System prompt
// prepended as a system message, the shape records store.
func (r *ChatRequest) AllMessages() []Message {
	system, ok := r.System.(string)
	if !ok || system == "" {
		return r.Messages
	}

	all := make([]Message, 0, len(r.Messages)+1)
	all = append(all, NewTextMessage("system", system))
	return append(all, r.Messages...)
}
