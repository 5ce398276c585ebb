package router

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	openai "github.com/sashabaranov/go-openai"

	"github.com/cfahlgren1/observers/pkg/llm"
	anthropicwire "github.com/cfahlgren1/observers/pkg/llm/provider/anthropic"
	ollamawire "github.com/cfahlgren1/observers/pkg/llm/provider/ollama"
	openaiwire "github.com/cfahlgren1/observers/pkg/llm/provider/openai"
)

// DefaultAnthropicMaxTokens is sent when a routed request has no max_tokens,
// which the Messages API requires.
const DefaultAnthropicMaxTokens = 1024

// OpenAI returns a backend that sends requests through an OpenAI client.
func OpenAI(client *openai.Client) Backend {
	return BackendFunc(func(ctx context.Context, model string, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		creq := openai.ChatCompletionRequest{
			Model: model,
			Stop:  req.Stop,
			Seed:  req.Seed,
		}
		for _, m := range req.AllMessages() {
			creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.GetText()})
		}
		if req.Temperature != nil {
			creq.Temperature = float32(*req.Temperature)
		}
		if req.TopP != nil {
			creq.TopP = float32(*req.TopP)
		}
		if req.MaxTokens != nil {
			creq.MaxTokens = *req.MaxTokens
		}

		resp, err := client.CreateChatCompletion(ctx, creq)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		return openaiwire.New().ParseResponse(payload)
	})
}

// Anthropic returns a backend that sends requests through an Anthropic client.
func Anthropic(client *anthropic.Client) Backend {
	return BackendFunc(func(ctx context.Context, model string, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		params := anthropic.MessageNewParams{
			Model:         anthropic.Model(model),
			MaxTokens:     DefaultAnthropicMaxTokens,
			StopSequences: req.Stop,
		}
		if req.MaxTokens != nil {
			params.MaxTokens = int64(*req.MaxTokens)
		}
		if req.Temperature != nil {
			params.Temperature = anthropic.Float(*req.Temperature)
		}
		if req.TopP != nil {
			params.TopP = anthropic.Float(*req.TopP)
		}
		if req.TopK != nil {
			params.TopK = anthropic.Int(int64(*req.TopK))
		}

		// The Messages API takes system prompts outside the message list.
		for _, m := range req.AllMessages() {
			switch m.Role {
			case "system":
				params.System = append(params.System, anthropic.TextBlockParam{Text: m.GetText()})
			case "assistant":
				params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.GetText())))
			default:
				params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.GetText())))
			}
		}

		msg, err := client.Messages.New(ctx, params)
		if err != nil {
			return nil, err
		}
		return anthropicwire.New().ParseResponse([]byte(msg.RawJSON()))
	})
}

// Ollama returns a backend that sends non-streaming requests through an
// Ollama client.
func Ollama(client *api.Client) Backend {
	return BackendFunc(func(ctx context.Context, model string, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		stream := false
		creq := &api.ChatRequest{
			Model:   model,
			Stream:  &stream,
			Options: map[string]any{},
		}
		for _, m := range req.AllMessages() {
			creq.Messages = append(creq.Messages, api.Message{Role: m.Role, Content: m.GetText()})
		}
		if req.Temperature != nil {
			creq.Options["temperature"] = *req.Temperature
		}
		if req.TopP != nil {
			creq.Options["top_p"] = *req.TopP
		}
		if req.TopK != nil {
			creq.Options["top_k"] = *req.TopK
		}
		if req.MaxTokens != nil {
			creq.Options["num_predict"] = *req.MaxTokens
		}
		if len(req.Stop) > 0 {
			creq.Options["stop"] = req.Stop
		}

		var final api.ChatResponse
		err := client.Chat(ctx, creq, func(resp api.ChatResponse) error {
			final = resp
			return nil
		})
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(final)
		if err != nil {
			return nil, err
		}
		return ollamawire.New().ParseResponse(payload)
	})
}
