// Package ollama records chat calls made through the Ollama API client.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/cfahlgren1/observers/pkg/llm"
	wire "github.com/cfahlgren1/observers/pkg/llm/provider/ollama"
	"github.com/cfahlgren1/observers/pkg/observer"
	"github.com/cfahlgren1/observers/pkg/record"
)

// ClientName is the default client name, giving the "ollama_records" table.
const ClientName = "ollama"

// ErrNilRequest is returned by Chat for a nil request. Nothing is recorded.
var ErrNilRequest = errors.New("ollama: chat request is nil")

// Observer wraps an Ollama client.
type Observer struct {
	client *api.Client
	obs    *observer.Observer[api.ChatRequest, api.ChatResponse]
}

// Wrap returns an observer around client.
func Wrap(client *api.Client, opts ...observer.Option) (*Observer, error) {
	o := &Observer{client: client}
	obs, err := observer.New(ClientName, o.chatFunc(nil), Parse, opts...)
	if err != nil {
		return nil, err
	}
	o.obs = obs
	return o, nil
}

// Chat sends req and records the call. fn, when non-nil, receives every
// streamed chunk unchanged; the record is built from the chunks folded
// into one final response.
func (o *Observer) Chat(ctx context.Context, req *api.ChatRequest, fn api.ChatResponseFunc) error {
	if req == nil {
		return ErrNilRequest
	}
	_, err := o.obs.CreateWith(ctx, *req, o.chatFunc(fn))
	return err
}

// Client returns the wrapped client.
func (o *Observer) Client() *api.Client { return o.client }

// Close closes the observer's store.
func (o *Observer) Close() error { return o.obs.Close() }

func (o *Observer) chatFunc(fn api.ChatResponseFunc) observer.CreateFunc[api.ChatRequest, api.ChatResponse] {
	return func(ctx context.Context, req api.ChatRequest) (api.ChatResponse, error) {
		var acc accumulator
		err := o.client.Chat(ctx, &req, func(chunk api.ChatResponse) error {
			acc.add(chunk)
			if fn != nil {
				return fn(chunk)
			}
			return nil
		})
		if err != nil {
			return api.ChatResponse{}, err
		}
		return acc.response(), nil
	}
}

// accumulator folds streamed chunks into the final response.
type accumulator struct {
	last      api.ChatResponse
	role      string
	content   strings.Builder
	thinking  strings.Builder
	images    []api.ImageData
	toolCalls []api.ToolCall
}

func (a *accumulator) add(chunk api.ChatResponse) {
	a.last = chunk
	if chunk.Message.Role != "" {
		a.role = chunk.Message.Role
	}
	a.content.WriteString(chunk.Message.Content)
	a.thinking.WriteString(chunk.Message.Thinking)
	a.images = append(a.images, chunk.Message.Images...)
	a.toolCalls = append(a.toolCalls, chunk.Message.ToolCalls...)
}

func (a *accumulator) response() api.ChatResponse {
	resp := a.last
	resp.Message.Role = a.role
	resp.Message.Content = a.content.String()
	resp.Message.Thinking = a.thinking.String()
	resp.Message.Images = a.images
	resp.Message.ToolCalls = a.toolCalls
	return resp
}

// Parse builds the record for one chat call from the wire form of the
// request and the accumulated response.
func Parse(client string, req api.ChatRequest, resp api.ChatResponse, err error) record.Record {
	chatReq := parseRequest(req)
	if err != nil {
		return record.FromTurn(client, chatReq, nil, err, record.Meta{})
	}

	payload, mErr := json.Marshal(resp)
	if mErr != nil {
		return record.FromTurn(client, chatReq, nil, mErr, record.Meta{})
	}
	chatResp, pErr := wire.New().ParseResponse(payload)
	if pErr != nil {
		return record.FromTurn(client, chatReq, nil, pErr, record.Meta{})
	}
	return record.FromTurn(client, chatReq, chatResp, nil, record.Meta{})
}

func parseRequest(req api.ChatRequest) *llm.ChatRequest {
	if payload, err := json.Marshal(req); err == nil {
		if chatReq, err := wire.New().ParseRequest(payload); err == nil {
			return chatReq
		}
	}
	chatReq := &llm.ChatRequest{Model: req.Model}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, llm.NewTextMessage(m.Role, m.Content))
	}
	return chatReq
}
