// Package openai records chat completions made through a go-openai client.
package openai

import (
	"context"
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cfahlgren1/observers/pkg/llm"
	wire "github.com/cfahlgren1/observers/pkg/llm/provider/openai"
	"github.com/cfahlgren1/observers/pkg/observer"
	"github.com/cfahlgren1/observers/pkg/record"
)

// ClientName is the default client name, giving the "openai_records" table.
const ClientName = "openai"

// Observer wraps an OpenAI client (or any OpenAI-compatible endpoint).
type Observer struct {
	client *openai.Client
	obs    *observer.Observer[openai.ChatCompletionRequest, openai.ChatCompletionResponse]
}

// Wrap returns an observer around client. Use observer.WithClientName for
// OpenAI-compatible routers so their records land in their own table.
func Wrap(client *openai.Client, opts ...observer.Option) (*Observer, error) {
	o := &Observer{client: client}
	obs, err := observer.New(ClientName, o.create, Parse, opts...)
	if err != nil {
		return nil, err
	}
	o.obs = obs
	return o, nil
}

func (o *Observer) create(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return o.client.CreateChatCompletion(ctx, req)
}

// CreateChatCompletion calls the client and records the call.
func (o *Observer) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return o.obs.Create(ctx, req)
}

// Client returns the wrapped client for calls that are not observed.
func (o *Observer) Client() *openai.Client { return o.client }

// Close closes the observer's store.
func (o *Observer) Close() error { return o.obs.Close() }

// Parse builds the record for one chat completion. Requests and responses
// go through the OpenAI wire parser so that records match what the proxy
// produces for the same traffic.
func Parse(client string, req openai.ChatCompletionRequest, resp openai.ChatCompletionResponse, err error) record.Record {
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

func parseRequest(req openai.ChatCompletionRequest) *llm.ChatRequest {
	payload, err := json.Marshal(req)
	if err == nil {
		if chatReq, err := wire.New().ParseRequest(payload); err == nil {
			return chatReq
		}
	}
	// Fall back to the text of each message.
	chatReq := &llm.ChatRequest{Model: req.Model}
	for _, m := range req.Messages {
		chatReq.Messages = append(chatReq.Messages, llm.NewTextMessage(m.Role, m.Content))
	}
	return chatReq
}
