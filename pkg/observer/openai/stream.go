package openai

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Stream is a chat completion stream whose chunks are accumulated into a
// single record, stored once when the stream ends, fails or is closed.
type Stream struct {
	ctx    context.Context
	stream *openai.ChatCompletionStream
	obs    *Observer
	req    openai.ChatCompletionRequest
	acc    accumulator
	once   sync.Once
}

// CreateChatCompletionStream opens a stream and records it once consumed.
// A failure to open the stream is recorded immediately.
func (o *Observer) CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*Stream, error) {
	req = o.obs.Prepare(req)

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		rec := Parse(o.obs.ClientName(), req, openai.ChatCompletionResponse{}, err)
		if storeErr := o.obs.Record(ctx, rec); storeErr != nil && o.obs.Strict() {
			return nil, errors.Join(err, storeErr)
		}
		return nil, err
	}

	return &Stream{ctx: ctx, stream: stream, obs: o, req: req}, nil
}

// Recv returns the next chunk. io.EOF marks the end of the stream.
func (s *Stream) Recv() (openai.ChatCompletionStreamResponse, error) {
	chunk, err := s.stream.Recv()
	switch {
	case errors.Is(err, io.EOF):
		if storeErr := s.finish(nil); storeErr != nil {
			return chunk, errors.Join(err, storeErr)
		}
		return chunk, err
	case err != nil:
		if storeErr := s.finish(err); storeErr != nil {
			return chunk, errors.Join(err, storeErr)
		}
		return chunk, err
	}

	s.acc.add(chunk)
	return chunk, nil
}

// Close records whatever was received so far, if the stream has not ended,
// and closes the underlying stream.
func (s *Stream) Close() error {
	storeErr := s.finish(nil)
	return errors.Join(s.stream.Close(), storeErr)
}

// finish stores the record once. It returns the store error only in strict mode.
func (s *Stream) finish(streamErr error) error {
	var storeErr error
	s.once.Do(func() {
		var resp openai.ChatCompletionResponse
		if streamErr == nil {
			resp = s.acc.response()
		}
		rec := Parse(s.obs.obs.ClientName(), s.req, resp, streamErr)
		if err := s.obs.obs.Record(s.ctx, rec); err != nil && s.obs.obs.Strict() {
			storeErr = err
		}
	})
	return storeErr
}

type toolCallAcc struct {
	id        string
	typ       openai.ToolType
	name      string
	arguments strings.Builder
}

// accumulator folds stream chunks into one response.
type accumulator struct {
	id                string
	model             string
	created           int64
	systemFingerprint string
	role              string
	content           strings.Builder
	finishReason      openai.FinishReason
	usage             *openai.Usage
	functionCall      *openai.FunctionCall
	toolCalls         map[int]*toolCallAcc
}

func (a *accumulator) add(chunk openai.ChatCompletionStreamResponse) {
	if chunk.ID != "" {
		a.id = chunk.ID
	}
	if chunk.Model != "" {
		a.model = chunk.Model
	}
	if chunk.Created != 0 {
		a.created = chunk.Created
	}
	if chunk.SystemFingerprint != "" {
		a.systemFingerprint = chunk.SystemFingerprint
	}
	if chunk.Usage != nil {
		a.usage = chunk.Usage
	}
	if len(chunk.Choices) == 0 {
		return
	}

	choice := chunk.Choices[0]
	delta := choice.Delta
	if delta.Role != "" {
		a.role = delta.Role
	}
	a.content.WriteString(delta.Content)
	if choice.FinishReason != "" {
		a.finishReason = choice.FinishReason
	}

	if delta.FunctionCall != nil {
		if a.functionCall == nil {
			a.functionCall = &openai.FunctionCall{}
		}
		if delta.FunctionCall.Name != "" {
			a.functionCall.Name = delta.FunctionCall.Name
		}
		a.functionCall.Arguments += delta.FunctionCall.Arguments
	}

	for i, tc := range delta.ToolCalls {
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		if a.toolCalls == nil {
			a.toolCalls = make(map[int]*toolCallAcc)
		}
		call, ok := a.toolCalls[idx]
		if !ok {
			call = &toolCallAcc{}
			a.toolCalls[idx] = call
		}
		if tc.ID != "" {
			call.id = tc.ID
		}
		if tc.Type != "" {
			call.typ = tc.Type
		}
		if tc.Function.Name != "" {
			call.name = tc.Function.Name
		}
		call.arguments.WriteString(tc.Function.Arguments)
	}
}

func (a *accumulator) response() openai.ChatCompletionResponse {
	role := a.role
	if role == "" {
		role = openai.ChatMessageRoleAssistant
	}
	created := a.created
	if created == 0 {
		created = time.Now().Unix()
	}

	msg := openai.ChatCompletionMessage{
		Role:         role,
		Content:      a.content.String(),
		FunctionCall: a.functionCall,
	}

	indexes := make([]int, 0, len(a.toolCalls))
	for idx := range a.toolCalls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		call := a.toolCalls[idx]
		typ := call.typ
		if typ == "" {
			typ = openai.ToolTypeFunction
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   call.id,
			Type: typ,
			Function: openai.FunctionCall{
				Name:      call.name,
				Arguments: call.arguments.String(),
			},
		})
	}

	resp := openai.ChatCompletionResponse{
		ID:                a.id,
		Object:            "chat.completion",
		Created:           created,
		Model:             a.model,
		SystemFingerprint: a.systemFingerprint,
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      msg,
			FinishReason: a.finishReason,
		}},
	}
	if a.usage != nil {
		resp.Usage = *a.usage
	}
	return resp
}
