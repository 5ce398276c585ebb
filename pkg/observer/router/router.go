// Package router records calls made through a multi-provider router that
// addresses models as "provider:model" and dispatches each call to the
// backend registered for the provider.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cfahlgren1/observers/pkg/llm"
	"github.com/cfahlgren1/observers/pkg/observer"
	"github.com/cfahlgren1/observers/pkg/record"
)

// ClientName gives the "aisuite_records" table.
const ClientName = "aisuite"

var (
	ErrInvalidModel    = errors.New("model must be in the form provider:model")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Backend answers a normalized chat request for one provider. model is the
// provider-local model name with the "provider:" prefix removed.
type Backend interface {
	Chat(ctx context.Context, model string, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, model string, req *llm.ChatRequest) (*llm.ChatResponse, error)

func (f BackendFunc) Chat(ctx context.Context, model string, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return f(ctx, model, req)
}

// Router dispatches chat requests by provider prefix.
type Router struct {
	backends map[string]Backend
	obs      *observer.Observer[llm.ChatRequest, *llm.ChatResponse]
}

// New returns a router over backends, keyed by provider name.
func New(backends map[string]Backend, opts ...observer.Option) (*Router, error) {
	r := &Router{backends: make(map[string]Backend, len(backends))}
	for name, b := range backends {
		r.backends[name] = b
	}

	obs, err := observer.New(ClientName, r.dispatch, Parse, opts...)
	if err != nil {
		return nil, err
	}
	r.obs = obs
	return r, nil
}

// Register adds or replaces the backend for provider. It must not be called
// concurrently with Create.
func (r *Router) Register(provider string, b Backend) {
	r.backends[provider] = b
}

// Create dispatches req and records the call under the full
// "provider:model" name. Unknown providers produce an error record.
func (r *Router) Create(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return r.obs.Create(ctx, req)
}

// Close closes the router's store.
func (r *Router) Close() error { return r.obs.Close() }

func (r *Router) dispatch(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	provider, model, ok := strings.Cut(req.Model, ":")
	if !ok || provider == "" || model == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidModel, req.Model)
	}

	b, ok := r.backends[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	return b.Chat(ctx, model, &req)
}

// Parse builds the record for one routed call. The record keeps the routed
// "provider:model" name rather than the backend's model.
func Parse(client string, req llm.ChatRequest, resp *llm.ChatResponse, err error) record.Record {
	if err != nil {
		resp = nil
	}
	rec := record.FromTurn(client, &req, resp, err, record.Meta{})
	if req.Model != "" {
		rec.Model = req.Model
	}
	return rec
}
