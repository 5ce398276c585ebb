// Package anthropic records Messages API calls made through the Anthropic SDK.
package anthropic

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/cfahlgren1/observers/pkg/llm"
	wire "github.com/cfahlgren1/observers/pkg/llm/provider/anthropic"
	"github.com/cfahlgren1/observers/pkg/observer"
	"github.com/cfahlgren1/observers/pkg/record"
)

// ClientName is the default client name, giving the "anthropic_records" table.
const ClientName = "anthropic"

// Observer wraps an Anthropic client.
type Observer struct {
	client *anthropic.Client
	obs    *observer.Observer[anthropic.MessageNewParams, *anthropic.Message]
}

// Wrap returns an observer around client.
func Wrap(client *anthropic.Client, opts ...observer.Option) (*Observer, error) {
	o := &Observer{client: client}
	obs, err := observer.New(ClientName, o.create, Parse, opts...)
	if err != nil {
		return nil, err
	}
	o.obs = obs
	return o, nil
}

func (o *Observer) create(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return o.client.Messages.New(ctx, params)
}

// NewMessage sends params and records the call.
func (o *Observer) NewMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return o.obs.Create(ctx, params)
}

// Client returns the wrapped client.
func (o *Observer) Client() *anthropic.Client { return o.client }

// Close closes the observer's store.
func (o *Observer) Close() error { return o.obs.Close() }

// Parse builds the record for one Messages call from the wire form of the
// params and the raw response JSON.
func Parse(client string, params anthropic.MessageNewParams, msg *anthropic.Message, err error) record.Record {
	chatReq := &llm.ChatRequest{Model: string(params.Model)}
	if payload, mErr := json.Marshal(params); mErr == nil {
		if parsed, pErr := wire.New().ParseRequest(payload); pErr == nil {
			chatReq = parsed
		}
	}

	if err != nil || msg == nil {
		return record.FromTurn(client, chatReq, nil, err, record.Meta{})
	}

	payload := []byte(msg.RawJSON())
	if len(payload) == 0 {
		var mErr error
		if payload, mErr = json.Marshal(msg); mErr != nil {
			return record.FromTurn(client, chatReq, nil, mErr, record.Meta{})
		}
	}
	chatResp, pErr := wire.New().ParseResponse(payload)
	if pErr != nil {
		return record.FromTurn(client, chatReq, nil, pErr, record.Meta{})
	}
	return record.FromTurn(client, chatReq, chatResp, nil, record.Meta{})
}
