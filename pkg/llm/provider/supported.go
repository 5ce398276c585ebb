package provider

import (
	"fmt"

	"github.com/cfahlgren1/observers/pkg/llm/provider/anthropic"
	"github.com/cfahlgren1/observers/pkg/llm/provider/ollama"
	"github.com/cfahlgren1/observers/pkg/llm/provider/openai"
)

// Supported provider names.
const (
	Anthropic = "anthropic"
	OpenAI    = "openai"
	Ollama    = "ollama"
)

// SupportedProviders returns the names accepted by New.
func SupportedProviders() []string {
	return []string{Anthropic, OpenAI, Ollama}
}

// New returns the parser for the named provider.
func New(providerType string) (Provider, error) {
	switch providerType {
	case Anthropic:
		return anthropic.New(), nil
	case OpenAI:
		return openai.New(), nil
	case Ollama:
		return ollama.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %q (supported: %v)", providerType, SupportedProviders())
	}
}
