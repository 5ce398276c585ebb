package record

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/cfahlgren1/observers/pkg/llm"
)

// FinishReasonError marks records of calls that failed before a response.
const FinishReasonError = "error"

// Message is one input message as persisted on a record.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a tool invocation in OpenAI tool_calls shape.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction names the tool and carries its JSON-encoded arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatCompletion records one chat completion call.
type ChatCompletion struct {
	Base

	ClientName       string          `json:"-"`
	Model            string          `json:"model"`
	Timestamp        time.Time       `json:"timestamp"`
	Messages         []Message       `json:"messages"`
	AssistantMessage string          `json:"assistant_message"`
	CompletionTokens int             `json:"completion_tokens"`
	PromptTokens     int             `json:"prompt_tokens"`
	TotalTokens      int             `json:"total_tokens"`
	FinishReason     string          `json:"finish_reason"`
	ToolCalls        []ToolCall      `json:"tool_calls"`
	FunctionCall     json.RawMessage `json:"function_call"`
}

var chatColumns = []Column{
	{Name: "id", Kind: KindString},
	{Name: "model", Kind: KindString},
	{Name: "timestamp", Kind: KindTimestamp},
	{Name: "messages", Kind: KindJSON},
	{Name: "assistant_message", Kind: KindText},
	{Name: "completion_tokens", Kind: KindInt},
	{Name: "prompt_tokens", Kind: KindInt},
	{Name: "total_tokens", Kind: KindInt},
	{Name: "finish_reason", Kind: KindString},
	{Name: "tool_calls", Kind: KindJSON},
	{Name: "function_call", Kind: KindJSON},
	{Name: "tags", Kind: KindStringList},
	{Name: "properties", Kind: KindJSON},
	{Name: "error", Kind: KindString},
	{Name: "raw_response", Kind: KindJSON},
	{Name: "synced_at", Kind: KindTimestamp},
}

var chatAnnotation = Annotation{
	Fields: []AnnotationField{
		{Name: "messages", Type: FieldChat, Description: "The messages sent to the assistant.", Required: true},
		{Name: "assistant_message", Type: FieldText, Description: "The response from the assistant."},
		{Name: "tool_calls", Type: FieldCustom, Description: "The tool calls made by the assistant.", Template: "{{ json record.fields.tool_calls }}"},
		{Name: "function_call", Type: FieldCustom, Description: "The function call made by the assistant.", Template: "{{ json record.fields.function_call }}"},
		{Name: "properties", Type: FieldCustom, Description: "The properties associated with the response.", Template: "{{ json record.fields.properties }}"},
		{Name: "raw_response", Type: FieldCustom, Description: "The raw response from the API.", Template: "{{ json record.fields.raw_response }}"},
	},
	Questions: []Question{
		{Name: "rating", Type: QuestionRating, Required: true, Values: []int{1, 2, 3, 4, 5},
			Description: "How would you rate the response? 1 being the worst and 5 being the best."},
		{Name: "improved_response", Type: QuestionText,
			Description: "If you would like to improve the response, please provide a better response here."},
		{Name: "context", Type: QuestionText,
			Description: "If you would like to provide more context for the response or rating, please provide it here."},
	},
	Metadata: []MetadataProperty{
		{Name: "completion_tokens", Type: MetadataInteger},
		{Name: "prompt_tokens", Type: MetadataInteger},
		{Name: "total_tokens", Type: MetadataInteger},
		{Name: "model", Type: MetadataTerms},
		{Name: "finish_reason", Type: MetadataTerms},
		{Name: "tags", Type: MetadataTerms},
	},
}

// TableName is "<client_name>_records".
func (c *ChatCompletion) TableName() string { return c.ClientName + "_records" }

func (c *ChatCompletion) Columns() []Column { return chatColumns }

func (c *ChatCompletion) JSONFields() []string {
	return []string{"tool_calls", "function_call", "tags", "properties", "raw_response"}
}

func (c *ChatCompletion) ImageFields() []string { return nil }

func (c *ChatCompletion) Annotation() Annotation { return chatAnnotation }

func (c *ChatCompletion) EventFields() []string {
	return []string{
		"assistant_message", "completion_tokens", "total_tokens", "prompt_tokens",
		"finish_reason", "tool_calls", "function_call", "tags", "properties",
		"error", "model", "timestamp", "id",
	}
}

func (c *ChatCompletion) Values() map[string]any {
	values := map[string]any{
		"model":             c.Model,
		"timestamp":         c.Timestamp,
		"messages":          c.Messages,
		"assistant_message": c.AssistantMessage,
		"completion_tokens": c.CompletionTokens,
		"prompt_tokens":     c.PromptTokens,
		"total_tokens":      c.TotalTokens,
		"finish_reason":     c.FinishReason,
		"tool_calls":        c.ToolCalls,
		"function_call":     c.FunctionCall,
	}
	return c.baseValues(values)
}

// FromTurn builds the record for one chat call. A nil resp produces an error
// record carrying err's text. The model reported by the response wins; the
// request model is the fallback.
func FromTurn(client string, req *llm.ChatRequest, resp *llm.ChatResponse, err error, meta Meta) *ChatCompletion {
	rec := &ChatCompletion{
		Base:       Base{ID: uuid.NewString()},
		ClientName: client,
		Timestamp:  time.Now().UTC(),
	}

	if req != nil {
		rec.Model = req.Model
		rec.Messages = FlattenMessages(req.AllMessages())
	}

	if resp == nil {
		rec.FinishReason = FinishReasonError
		if err != nil {
			rec.Error = err.Error()
		}
		rec.Apply(meta)
		return rec
	}

	if err != nil {
		rec.Error = err.Error()
	}
	if resp.ID != "" {
		rec.ID = resp.ID
	}
	if resp.Model != "" {
		rec.Model = resp.Model
	}
	rec.AssistantMessage = resp.Message.GetText()
	rec.FinishReason = resp.StopReason
	rec.ToolCalls = ToolCalls(resp.Message)
	rec.FunctionCall = resp.FunctionCall
	rec.RawResponse = resp.RawResponse
	if resp.Usage != nil {
		rec.PromptTokens = resp.Usage.PromptTokens
		rec.CompletionTokens = resp.Usage.CompletionTokens
		rec.TotalTokens = resp.Usage.TotalTokens
		if rec.TotalTokens == 0 {
			rec.TotalTokens = rec.PromptTokens + rec.CompletionTokens
		}
	}

	rec.Apply(meta)
	return rec
}

// FlattenMessages converts normalized messages to their persisted form. Text
// blocks are concatenated; messages with any non-text block keep the JSON
// encoding of their blocks.
func FlattenMessages(messages []llm.Message) []Message {
	return lo.Map(messages, func(m llm.Message, _ int) Message {
		if m.IsTextOnly() {
			return Message{Role: m.Role, Content: m.GetText()}
		}
		b, err := json.Marshal(m.Content)
		if err != nil {
			return Message{Role: m.Role, Content: m.GetText()}
		}
		return Message{Role: m.Role, Content: string(b)}
	})
}

// ToolCalls re-encodes the tool_use blocks of msg in OpenAI tool_calls shape.
// Arguments the provider sent as a string are kept verbatim. It returns nil
// when msg requested no tools.
func ToolCalls(msg llm.Message) []ToolCall {
	uses := msg.ToolUses()
	if len(uses) == 0 {
		return nil
	}
	return lo.Map(uses, func(block llm.ContentBlock, _ int) ToolCall {
		args := block.ToolArguments
		if args == "" {
			args = "{}"
		}
		if block.ToolArguments == "" && block.ToolInput != nil {
			if b, err := json.Marshal(block.ToolInput); err == nil {
				args = string(b)
			}
		}
		return ToolCall{
			ID:       block.ToolUseID,
			Type:     "function",
			Function: ToolCallFunction{Name: block.ToolName, Arguments: args},
		}
	})
}
