// Package anthropic parses the Anthropic Messages API wire format.
package anthropic

import (
	"encoding/json"
	"time"

	"github.com/cfahlgren1/observers/pkg/llm"
)

type provider struct{}

func New() *provider { return &provider{} }

func (p *provider) Name() string { return "anthropic" }

func (p *provider) DefaultStreaming() bool { return false }

func (p *provider) ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req messagesRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, llm.Message{
			Role:    msg.Role,
			Content: convertContent(msg.Content),
		})
	}

	result := &llm.ChatRequest{
		Model:       req.Model,
		Messages:    messages,
		System:      systemText(req.System),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		Stop:        req.Stop,
		Stream:      req.Stream,
		RawRequest:  payload,
	}
	if req.MaxTokens > 0 {
		maxTokens := req.MaxTokens
		result.MaxTokens = &maxTokens
	}
	if len(req.Tools) > 0 {
		result.Extra = map[string]any{"tools": req.Tools}
	}

	return result, nil
}

func (p *provider) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp messagesResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	content := make([]llm.ContentBlock, 0, len(resp.Content))
	for _, block := range resp.Content {
		cb := llm.ContentBlock{Type: block.Type}
		switch block.Type {
		case llm.BlockText:
			cb.Text = block.Text
		case llm.BlockToolUse:
			cb.ToolUseID = block.ID
			cb.ToolName = block.Name
			cb.ToolInput = block.Input
		}
		content = append(content, cb)
	}

	result := &llm.ChatResponse{
		ID:          resp.ID,
		Model:       resp.Model,
		Message:     llm.Message{Role: resp.Role, Content: content},
		Done:        true,
		StopReason:  resp.StopReason,
		CreatedAt:   time.Now(),
		RawResponse: payload,
		Extra:       map[string]any{"type": resp.Type},
	}
	if resp.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:             resp.Usage.InputTokens,
			CompletionTokens:         resp.Usage.OutputTokens,
			TotalTokens:              resp.Usage.InputTokens + resp.Usage.OutputTokens,
			CacheCreationInputTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     resp.Usage.CacheReadInputTokens,
		}
	}

	return result, nil
}

func convertContent(raw any) []llm.ContentBlock {
	switch content := raw.(type) {
	case string:
		return []llm.ContentBlock{{Type: llm.BlockText, Text: content}}
	case []any:
		blocks := make([]llm.ContentBlock, 0, len(content))
		for _, item := range content {
			block, ok := item.(map[string]any)
			if !ok {
				continue
			}
			cb := llm.ContentBlock{}
			cb.Type, _ = block["type"].(string)
			cb.Text, _ = block["text"].(string)
			if source, ok := block["source"].(map[string]any); ok {
				cb.MediaType, _ = source["media_type"].(string)
				cb.ImageBase64, _ = source["data"].(string)
				cb.ImageURL, _ = source["url"].(string)
			}
			cb.ToolUseID, _ = block["id"].(string)
			cb.ToolName, _ = block["name"].(string)
			cb.ToolInput, _ = block["input"].(map[string]any)
			if cb.Type == llm.BlockToolResult {
				cb.ToolResultID, _ = block["tool_use_id"].(string)
				cb.ToolOutput = toolOutput(block["content"])
				cb.IsError, _ = block["is_error"].(bool)
			}
			blocks = append(blocks, cb)
		}
		return blocks
	default:
		return []llm.ContentBlock{}
	}
}

// systemText collapses a block-list system prompt into plain text.
func systemText(raw any) any {
	blocks, ok := raw.([]any)
	if !ok {
		return raw
	}
	var text string
	for _, b := range convertContent(blocks) {
		text += b.Text
	}
	return text
}

func toolOutput(raw any) string {
	switch out := raw.(type) {
	case string:
		return out
	case []any:
		var text string
		for _, b := range convertContent(out) {
			text += b.Text
		}
		return text
	default:
		return ""
	}
}
