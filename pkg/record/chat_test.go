package record_test

import (
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cfahlgren1/observers/pkg/llm"
	"github.com/cfahlgren1/observers/pkg/record"
)

var _ = Describe("FromTurn", func() {
	var req *llm.ChatRequest

	BeforeEach(func() {
		req = &llm.ChatRequest{
			Model:  "gpt-4o",
			System: "Be brief.",
			Messages: []llm.Message{
				llm.NewTextMessage("user", "What is the weather?"),
			},
		}
	})

	It("builds a record from a successful response", func() {
		resp := &llm.ChatResponse{
			ID:          "chatcmpl-1",
			Model:       "gpt-4o-2024-08-06",
			Message:     llm.NewTextMessage("assistant", "Sunny."),
			StopReason:  "stop",
			Usage:       &llm.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
			RawResponse: json.RawMessage(`{"id":"chatcmpl-1"}`),
		}

		rec := record.FromTurn("openai", req, resp, nil, record.Meta{
			Tags:       []string{"prod"},
			Properties: map[string]any{"user": "u1"},
		})

		Expect(rec.ID).To(Equal("chatcmpl-1"))
		Expect(rec.TableName()).To(Equal("openai_records"))
		Expect(rec.Model).To(Equal("gpt-4o-2024-08-06"))
		Expect(rec.Messages).To(Equal([]record.Message{
			{Role: "system", Content: "Be brief."},
			{Role: "user", Content: "What is the weather?"},
		}))
		Expect(rec.AssistantMessage).To(Equal("Sunny."))
		Expect(rec.FinishReason).To(Equal("stop"))
		Expect(rec.TotalTokens).To(Equal(12))
		Expect(rec.Tags).To(Equal([]string{"prod"}))
		Expect(rec.Properties).To(HaveKeyWithValue("user", "u1"))
		Expect(rec.Error).To(BeEmpty())
		Expect(rec.SyncedAt).To(BeNil())
	})

	It("uses the response model when the request has none", func() {
		req.Model = ""
		rec := record.FromTurn("openai", req, &llm.ChatResponse{Model: "llama3"}, nil, record.Meta{})
		Expect(rec.Model).To(Equal("llama3"))
	})

	It("falls back to the request model when the response has none", func() {
		rec := record.FromTurn("openai", req, &llm.ChatResponse{ID: "x"}, nil, record.Meta{})
		Expect(rec.Model).To(Equal("gpt-4o"))
	})

	It("generates a uuid when the response has no id", func() {
		rec := record.FromTurn("ollama", req, &llm.ChatResponse{Model: "llama3"}, nil, record.Meta{})
		_, err := uuid.Parse(rec.ID)
		Expect(err).NotTo(HaveOccurred())
	})

	It("sums token counts when the provider omits the total", func() {
		resp := &llm.ChatResponse{Usage: &llm.Usage{PromptTokens: 4, CompletionTokens: 6}}
		rec := record.FromTurn("ollama", req, resp, nil, record.Meta{})
		Expect(rec.TotalTokens).To(Equal(10))
	})

	It("builds an error record when the call failed", func() {
		rec := record.FromTurn("openai", req, nil, errors.New("rate limited"), record.Meta{Tags: []string{"t"}})

		Expect(rec.FinishReason).To(Equal(record.FinishReasonError))
		Expect(rec.Error).To(Equal("rate limited"))
		Expect(rec.Model).To(Equal("gpt-4o"))
		Expect(rec.Messages).To(HaveLen(2))
		Expect(rec.AssistantMessage).To(BeEmpty())
		Expect(rec.Tags).To(Equal([]string{"t"}))
	})

	It("re-encodes tool_use blocks as tool calls", func() {
		resp := &llm.ChatResponse{
			Message: llm.Message{Role: "assistant", Content: []llm.ContentBlock{{
				Type:      llm.BlockToolUse,
				ToolUseID: "call_1",
				ToolName:  "weather",
				ToolInput: map[string]any{"city": "Paris"},
			}}},
			FunctionCall: json.RawMessage(`{"name":"legacy"}`),
		}

		rec := record.FromTurn("openai", req, resp, nil, record.Meta{})
		Expect(rec.ToolCalls).To(Equal([]record.ToolCall{{
			ID:       "call_1",
			Type:     "function",
			Function: record.ToolCallFunction{Name: "weather", Arguments: `{"city":"Paris"}`},
		}}))
		Expect(rec.FunctionCall).To(MatchJSON(`{"name":"legacy"}`))
	})

	It("keeps string-encoded tool arguments verbatim", func() {
		resp := &llm.ChatResponse{
			Message: llm.Message{Role: "assistant", Content: []llm.ContentBlock{{
				Type:          llm.BlockToolUse,
				ToolUseID:     "call_2",
				ToolName:      "lookup",
				ToolInput:     map[string]any{"order_id": 1.2345678901234567e19},
				ToolArguments: `{"order_id": 12345678901234567891}`,
			}}},
		}

		rec := record.FromTurn("openai", req, resp, nil, record.Meta{})
		Expect(rec.ToolCalls[0].Function.Arguments).To(Equal(`{"order_id": 12345678901234567891}`))
	})

	It("keeps multimodal messages as JSON content", func() {
		req.Messages = []llm.Message{{Role: "user", Content: []llm.ContentBlock{
			{Type: llm.BlockText, Text: "Describe"},
			{Type: llm.BlockImage, ImageURL: "https://example.com/a.png"},
		}}}

		rec := record.FromTurn("openai", req, nil, errors.New("boom"), record.Meta{})
		Expect(rec.Messages[1].Content).To(ContainSubstring(`"image_url":"https://example.com/a.png"`))
	})

	It("exposes columns ending with synced_at and values for each", func() {
		rec := record.FromTurn("openai", req, nil, nil, record.Meta{})
		cols := rec.Columns()
		Expect(cols[0].Name).To(Equal("id"))
		Expect(cols[len(cols)-1].Name).To(Equal("synced_at"))

		values := rec.Values()
		for _, col := range cols {
			Expect(values).To(HaveKey(col.Name))
		}
	})
})

var _ = Describe("Base.Apply", func() {
	It("keeps properties already set on the record", func() {
		b := record.Base{Properties: map[string]any{"a": 1}}
		b.Apply(record.Meta{Properties: map[string]any{"a": 2, "b": 3}})
		Expect(b.Properties).To(Equal(map[string]any{"a": 1, "b": 3}))
	})
})
