// Package ollama parses the Ollama /api/chat wire format.
package ollama

import (
	"encoding/json"

	"github.com/cfahlgren1/observers/pkg/llm"
)

type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string { return "ollama" }

// DefaultStreaming is true: /api/chat streams unless "stream": false is sent.
func (o *provider) DefaultStreaming() bool { return true }

func (o *provider) ParseRequest(payload []byte) (*llm.ChatRequest, error) {
	var req chatRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	messages := make([]llm.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, llm.Message{
			Role:    msg.Role,
			Content: convertMessage(msg),
		})
	}

	result := &llm.ChatRequest{
		Model:      req.Model,
		Messages:   messages,
		Stream:     req.Stream,
		RawRequest: payload,
	}

	extra := map[string]any{}
	if req.Options != nil {
		result.Temperature = req.Options.Temperature
		result.TopP = req.Options.TopP
		result.TopK = req.Options.TopK
		result.Seed = req.Options.Seed
		result.MaxTokens = req.Options.NumPredict
		result.Stop = req.Options.Stop

		if req.Options.NumCtx != nil {
			extra["num_ctx"] = *req.Options.NumCtx
		}
		if req.Options.RepeatPenalty != nil {
			extra["repeat_penalty"] = *req.Options.RepeatPenalty
		}
	}
	if req.Format != nil {
		extra["format"] = req.Format
	}
	if req.KeepAlive != nil {
		extra["keep_alive"] = req.KeepAlive
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

	stopReason := resp.DoneReason
	if stopReason == "" && resp.Done {
		stopReason = "stop"
	}

	result := &llm.ChatResponse{
		Model:       resp.Model,
		Message:     llm.Message{Role: resp.Message.Role, Content: convertMessage(resp.Message)},
		Done:        resp.Done,
		StopReason:  stopReason,
		CreatedAt:   resp.CreatedAt,
		RawResponse: payload,
	}
	if resp.PromptEvalCount > 0 || resp.EvalCount > 0 || resp.TotalDuration > 0 {
		result.Usage = &llm.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
			TotalDurationNs:  resp.TotalDuration,
			PromptDurationNs: resp.PromptEvalDuration,
		}
	}
	if resp.LoadDuration > 0 || resp.EvalDuration > 0 {
		result.Extra = map[string]any{
			"load_duration": resp.LoadDuration,
			"eval_duration": resp.EvalDuration,
		}
	}

	return result, nil
}

func convertMessage(msg chatMessage) []llm.ContentBlock {
	blocks := []llm.ContentBlock{{Type: llm.BlockText, Text: msg.Content}}
	for _, img := range msg.Images {
		blocks = append(blocks, llm.ContentBlock{Type: llm.BlockImage, ImageBase64: img})
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, llm.ContentBlock{
			Type:      llm.BlockToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Function.Name,
			ToolInput: tc.Function.Arguments,
		})
	}
	return blocks
}
