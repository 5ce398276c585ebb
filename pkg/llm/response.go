package llm

import (
	"encoding/json"
	"time"
)

// ChatResponse is the normalized form of a provider chat response.
type ChatResponse struct {
	// ID is the provider's response id, empty when the provider has none.
	ID string `json:"id,omitempty"`

	Model string `json:"model"`

	CreatedAt time.Time `json:"created_at,omitzero"`

	Message Message `json:"message"`

	Done bool `json:"done"`

	// StopReason as reported by the provider ("stop", "length", "end_turn", ...).
	StopReason string `json:"stop_reason,omitempty"`

	Usage *Usage `json:"usage,omitempty"`

	// FunctionCall carries a legacy OpenAI function_call payload verbatim.
	FunctionCall json.RawMessage `json:"function_call,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`

	RawResponse json.RawMessage `json:"raw_response,omitempty"`
}

// Usage contains token counts and timing information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`

	TotalDurationNs  int64 `json:"total_duration_ns,omitempty"`
	PromptDurationNs int64 `json:"prompt_duration_ns,omitempty"`
}

// ErrorResponse is the JSON body the proxy returns when it cannot reach upstream.
type ErrorResponse struct {
	Error string `json:"error"`
}
