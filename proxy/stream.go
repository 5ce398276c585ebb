package proxy

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cfahlgren1/observers/pkg/llm"
	"github.com/cfahlgren1/observers/pkg/llm/provider"
)

// streamChunk is the union of the streamed chunk shapes of all supported
// providers. Only the fields needed to rebuild a response are decoded.
type streamChunk struct {
	// Anthropic event type ("message_start", "content_block_delta", ...).
	Type string `json:"type"`

	ID    string `json:"id"`
	Model string `json:"model"`

	// OpenAI
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`

	// Anthropic
	Message *struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Usage struct {
			InputTokens              int `json:"input_tokens"`
			CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
			CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta *struct {
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`

	// OpenAI (final chunk) and Anthropic message_delta share the key.
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		OutputTokens     int `json:"output_tokens"`
	} `json:"usage"`

	// Ollama
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	TotalDuration   int64  `json:"total_duration"`
}

// streamAccumulator folds streamed chunks into one response.
type streamAccumulator struct {
	provider   string
	chunks     int
	id         string
	model      string
	stopReason string
	content    strings.Builder
	usage      llm.Usage
}

func newStreamAccumulator(providerName string) *streamAccumulator {
	return &streamAccumulator{provider: providerName}
}

func (a *streamAccumulator) add(payload []byte) {
	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return
	}
	a.chunks++

	switch a.provider {
	case provider.OpenAI:
		a.setIdentity(chunk.ID, chunk.Model)
		for _, choice := range chunk.Choices {
			a.content.WriteString(choice.Delta.Content)
			if choice.FinishReason != nil && *choice.FinishReason != "" {
				a.stopReason = *choice.FinishReason
			}
		}
		if chunk.Usage != nil {
			a.usage.PromptTokens = chunk.Usage.PromptTokens
			a.usage.CompletionTokens = chunk.Usage.CompletionTokens
		}

	case provider.Anthropic:
		switch chunk.Type {
		case "message_start":
			if m := chunk.Message; m != nil {
				a.setIdentity(m.ID, m.Model)
				u := m.Usage
				a.usage.PromptTokens = u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
				a.usage.CacheCreationInputTokens = u.CacheCreationInputTokens
				a.usage.CacheReadInputTokens = u.CacheReadInputTokens
			}
		case "content_block_delta":
			if chunk.Delta != nil {
				a.content.WriteString(chunk.Delta.Text)
			}
		case "message_delta":
			if chunk.Delta != nil && chunk.Delta.StopReason != "" {
				a.stopReason = chunk.Delta.StopReason
			}
			if chunk.Usage != nil {
				a.usage.CompletionTokens = chunk.Usage.OutputTokens
			}
		}

	case provider.Ollama:
		a.setIdentity("", chunk.Model)
		var msg struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		if json.Unmarshal(payload, &msg) == nil {
			a.content.WriteString(msg.Message.Content)
		}
		if chunk.Done {
			a.stopReason = chunk.DoneReason
			a.usage.PromptTokens = chunk.PromptEvalCount
			a.usage.CompletionTokens = chunk.EvalCount
			a.usage.TotalDurationNs = chunk.TotalDuration
		}
	}
}

func (a *streamAccumulator) setIdentity(id, model string) {
	if a.id == "" {
		a.id = id
	}
	if a.model == "" {
		a.model = model
	}
}

// response returns the folded response, or nil when no chunk was decoded.
func (a *streamAccumulator) response() *llm.ChatResponse {
	if a.chunks == 0 {
		return nil
	}

	resp := &llm.ChatResponse{
		ID:         a.id,
		Model:      a.model,
		CreatedAt:  time.Now(),
		Message:    llm.NewTextMessage("assistant", a.content.String()),
		Done:       true,
		StopReason: a.stopReason,
	}
	if a.usage.PromptTokens > 0 || a.usage.CompletionTokens > 0 {
		usage := a.usage
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		resp.Usage = &usage
	}
	return resp
}
