// Package provider normalizes provider wire payloads (OpenAI, Anthropic,
// Ollama) into pkg/llm types. Observers feed it the JSON encoding of SDK
// requests and responses; the recording proxy feeds it raw HTTP bodies.
package provider

import (
	"github.com/cfahlgren1/observers/pkg/llm"
)

// Provider parses one provider's chat API format.
type Provider interface {
	// Name returns the canonical provider name, e.g. "openai".
	Name() string

	// ParseRequest converts a provider request body into the normalized form.
	ParseRequest(payload []byte) (*llm.ChatRequest, error)

	// ParseResponse converts a provider response body into the normalized form.
	ParseResponse(payload []byte) (*llm.ChatResponse, error)

	// DefaultStreaming reports whether the provider streams when the request
	// carries no explicit "stream" field.
	DefaultStreaming() bool
}
