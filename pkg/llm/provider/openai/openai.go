// Package openai parses the OpenAI Chat Completions wire format, which is
// also spoken by OpenAI-compatible routers such as LiteLLM.
package openai

import (
	"encoding/json"
	"time"

	"github.com/cfahlgren1/observers/pkg/llm"
)

type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string { return "openai" }

func (o *provider) DefaultStreaming() bool { return false }

func (o *provider) ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		converted := llm.Message{
			Role:    msg.Role,
			Content: convertContent(msg.Content),
		}
		converted.Content = append(converted.Content, convertToolCalls(msg.ToolCalls)...)

		if msg.Role == "tool" && msg.ToolCallID != "" {
			text, _ := msg.Content.(string)
			converted.Content = []llm.ContentBlock{{
				Type:         llm.BlockToolResult,
				ToolResultID: msg.ToolCallID,
				ToolOutput:   text,
			}}
		}

		messages = append(messages, converted)
	}

	var stop []string
	switch s := req.Stop.(type) {
	case string:
		stop = []string{s}
	case []any:
		for _, item := range s {
			if str, ok := item.(string); ok {
				stop = append(stop, str)
			}
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == nil {
		maxTokens = req.MaxCompletion
	}

	result := &llm.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        stop,
		Seed:        req.Seed,
		Stream:      req.Stream,
		RawRequest:  payload,
	}

	extra := map[string]any{}
	if req.FrequencyPenalty != nil {
		extra["frequency_penalty"] = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		extra["presence_penalty"] = *req.PresencePenalty
	}
	if req.ResponseFormat != nil {
		extra["response_format"] = req.ResponseFormat
	}
	if len(req.Tools) > 0 {
		extra["tools"] = req.Tools
	}
	if len(extra) > 0 {
		result.Extra = extra
	}

	return result, nil
}

func (o *provider) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	result := &llm.ChatResponse{
		ID:          resp.ID,
		Model:       resp.Model,
		Done:        true,
		RawResponse: payload,
	}
	if resp.Created > 0 {
		result.CreatedAt = time.Unix(resp.Created, 0)
	}
	if resp.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	if len(resp.Choices) == 0 {
		return result, nil
	}

	choice := resp.Choices[0]
	content := convertContent(choice.Message.Content)
	content = append(content, convertToolCalls(choice.Message.ToolCalls)...)

	result.Message = llm.Message{Role: choice.Message.Role, Content: content}
	result.StopReason = choice.FinishReason
	if len(choice.Message.FunctionCall) > 0 && string(choice.Message.FunctionCall) != "null" {
		result.FunctionCall = choice.Message.FunctionCall
	}
	result.Extra = map[string]any{"object": resp.Object}
	if resp.SystemFingerprint != "" {
		result.Extra["system_fingerprint"] = resp.SystemFingerprint
	}

	return result, nil
}

// convertContent handles the string and multipart (vision) content shapes.
func convertContent(raw any) []llm.ContentBlock {
	switch content := raw.(type) {
	case string:
		return []llm.ContentBlock{{Type: llm.BlockText, Text: content}}
	case []any:
		blocks := make([]llm.ContentBlock, 0, len(content))
		for _, item := range content {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			cb := llm.ContentBlock{}
			if t, ok := part["type"].(string); ok {
				cb.Type = t
			}
			if text, ok := part["text"].(string); ok {
				cb.Text = text
			}
			if imageURL, ok := part["image_url"].(map[string]any); ok {
				cb.Type = llm.BlockImage
				if url, ok := imageURL["url"].(string); ok {
					cb.ImageURL = url
				}
			}
			blocks = append(blocks, cb)
		}
		return blocks
	default:
		return []llm.ContentBlock{}
	}
}

func convertToolCalls(calls []toolCall) []llm.ContentBlock {
	blocks := make([]llm.ContentBlock, 0, len(calls))
	for _, tc := range calls {
		var input map[string]any
		if tc.Function.Arguments != "" {
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		}
		blocks = append(blocks, llm.ContentBlock{
			Type:      llm.BlockToolUse,
			ToolUseID:     tc.ID,
			ToolName:      tc.Function.Name,
			ToolInput:     input,
			ToolArguments: tc.Function.Arguments,
		})
	}
	return blocks
}
