// Package proxy provides a recording LLM inference proxy. Requests are
// forwarded verbatim to the upstream provider and every chat call becomes an
// observation record, persisted off the request path by a worker pool.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"

	"github.com/cfahlgren1/observers/pkg/llm"
	"github.com/cfahlgren1/observers/pkg/llm/provider"
	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/sse"
	"github.com/cfahlgren1/observers/pkg/store"
	"github.com/cfahlgren1/observers/pkg/store/worker"
	"github.com/cfahlgren1/observers/proxy/header"
)

const providersPathPrefix = "/providers/"

// defaultUpstreams are used by /providers/{name}/... routes without a
// configured upstream.
var defaultUpstreams = map[string]string{
	provider.OpenAI:    "https://api.openai.com/v1",
	provider.Anthropic: "https://api.anthropic.com",
}

// Proxy is a transparent LLM inference proxy that records chat calls.
type Proxy struct {
	config        Config
	records       *worker.Pool
	logger        *slog.Logger
	httpClient    *http.Client
	server        *fiber.App
	providers     map[string]provider.Provider
	defaultProv   provider.Provider
	headerHandler *header.Handler
}

// New creates a new Proxy persisting records to s through a worker pool.
// Returns an error if the configured provider type is not recognized.
func New(config Config, s store.Store, logger *slog.Logger) (*Proxy, error) {
	if config.ProviderType == "" {
		return nil, errors.New("provider type is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	providers := make(map[string]provider.Provider)
	for _, name := range provider.SupportedProviders() {
		prov, err := provider.New(name)
		if err != nil {
			return nil, fmt.Errorf("could not create provider %s: %w", name, err)
		}
		providers[name] = prov
	}
	defaultProv, ok := providers[config.ProviderType]
	if !ok {
		_, err := provider.New(config.ProviderType)
		return nil, fmt.Errorf("could not create new provider: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		StreamRequestBody:     true,
	})
	app.Use(compress.New())

	pool, err := worker.NewPool(&worker.Config{Store: s, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	p := &Proxy{
		config:        config,
		records:       pool,
		logger:        logger,
		server:        app,
		providers:     providers,
		defaultProv:   defaultProv,
		headerHandler: header.NewHandler(),
		httpClient: &http.Client{
			// LLM requests can be slow, especially with thinking blocks
			Timeout: 5 * time.Minute,
		},
	}

	app.All("/*", p.handleProxy)

	return p, nil
}

// Run starts the proxy server on the configured listen address.
func (p *Proxy) Run() error {
	p.logger.Info("starting proxy server",
		"listen", p.config.ListenAddr,
		"upstream", p.config.UpstreamURL,
		"provider", p.defaultProv.Name(),
	)
	return p.server.Listen(p.config.ListenAddr)
}

// RunWithListener starts the proxy server using the provided listener.
func (p *Proxy) RunWithListener(listener net.Listener) error {
	p.logger.Info("starting proxy server",
		"listen", listener.Addr().String(),
		"upstream", p.config.UpstreamURL,
		"provider", p.defaultProv.Name(),
	)
	return p.server.Listener(listener)
}

// Close stops the server, then drains the record queue and closes the store.
func (p *Proxy) Close() error {
	return errors.Join(p.server.Shutdown(), p.records.Close())
}

// call is one proxied request.
type call struct {
	prov     provider.Provider
	client   string
	tags     []string
	path     string
	upstream string
	body     []byte
	req      *llm.ChatRequest
	start    time.Time
}

func (p *Proxy) handleProxy(c *fiber.Ctx) error {
	providerName, path := resolveProviderOverride(c.Path())
	prov, upstream := p.resolveProvider(providerName)

	cl := &call{
		prov:     prov,
		client:   p.clientName(prov, c.Get(header.ClientNameHeader)),
		tags:     header.Tags(c.Get(header.TagsHeader)),
		path:     path,
		upstream: upstream + path,
		body:     append([]byte(nil), c.Body()...),
		start:    time.Now(),
	}
	if q := c.Request().URI().QueryString(); len(q) > 0 {
		cl.upstream += "?" + string(q)
	}

	method := c.Method()
	isChatRequest := method == fiber.MethodPost && len(cl.body) > 0
	if isChatRequest {
		req, err := prov.ParseRequest(cl.body)
		if err != nil {
			p.logger.Warn("failed to parse request", "error", err, "provider", prov.Name())
		} else {
			cl.req = req
			p.logger.Debug("parsed request",
				"provider", prov.Name(),
				"model", req.Model,
				"message_count", len(req.Messages),
			)
		}
	}

	// Some providers (e.g. Ollama) stream when "stream" is omitted.
	streaming := false
	if cl.req != nil {
		if cl.req.Stream != nil {
			streaming = *cl.req.Stream
		} else {
			streaming = prov.DefaultStreaming()
		}
	}

	if streaming {
		return p.handleStreamingProxy(c, cl)
	}
	return p.handleNonStreamingProxy(c, method, cl)
}

func (p *Proxy) handleNonStreamingProxy(c *fiber.Ctx, method string, cl *call) error {
	var reqBody io.Reader
	if len(cl.body) > 0 {
		reqBody = bytes.NewReader(cl.body)
	}

	httpReq, err := http.NewRequestWithContext(c.Context(), method, cl.upstream, reqBody)
	if err != nil {
		p.logger.Error("failed to create upstream request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}
	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding request to upstream", "method", method, "url", cl.upstream)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", "error", err)
		p.recordCall(cl, nil, fmt.Errorf("upstream request failed: %w", err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		p.logger.Error("failed to read upstream response", "error", err)
		p.recordCall(cl, nil, fmt.Errorf("reading upstream response: %w", err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "failed to read upstream response"})
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	if cl.req != nil {
		switch {
		case httpResp.StatusCode >= http.StatusBadRequest:
			p.recordCall(cl, nil, upstreamStatusError(httpResp.StatusCode, respBody))
		default:
			resp, err := cl.prov.ParseResponse(respBody)
			if err != nil {
				p.logger.Warn("failed to parse response", "error", err, "provider", cl.prov.Name())
				p.recordCall(cl, nil, fmt.Errorf("parsing upstream response: %w", err))
			} else {
				p.recordCall(cl, resp, nil)
			}
		}
	}

	return c.Status(httpResp.StatusCode).Send(respBody)
}

func (p *Proxy) handleStreamingProxy(c *fiber.Ctx, cl *call) error {
	// fasthttp recycles its RequestCtx once the handler returns, while the
	// body stream is still being written from another goroutine.
	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, cl.upstream, bytes.NewReader(cl.body))
	if err != nil {
		p.logger.Error("failed to create upstream request", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
	}
	p.headerHandler.SetUpstreamRequestHeaders(c, httpReq)

	p.logger.Debug("forwarding streaming request to upstream", "url", cl.upstream)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		p.logger.Error("upstream request failed", "error", err)
		p.recordCall(cl, nil, fmt.Errorf("upstream request failed: %w", err))
		return c.Status(fiber.StatusBadGateway).JSON(llm.ErrorResponse{Error: "upstream request failed"})
	}
	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		p.logger.Warn("upstream returned error", "status", httpResp.StatusCode)
		p.recordCall(cl, nil, upstreamStatusError(httpResp.StatusCode, respBody))
		p.headerHandler.SetClientResponseHeaders(c, httpResp)
		return c.Status(httpResp.StatusCode).Send(respBody)
	}

	p.headerHandler.SetClientResponseHeaders(c, httpResp)

	// pw.Write blocks until fasthttp's chunked body writer has consumed the
	// data, so chunks reach the client as they arrive.
	pr, pw := io.Pipe()
	go p.pipeStream(httpResp, pw, cl)

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

func (p *Proxy) pipeStream(httpResp *http.Response, pw *io.PipeWriter, cl *call) {
	defer httpResp.Body.Close()

	acc := newStreamAccumulator(cl.prov.Name())
	payloads := sse.NewPayloadReader(httpResp.Header.Get("Content-Type"), httpResp.Body, pw)

	var streamErr error
	for {
		payload, err := payloads.Next()
		if err != nil {
			streamErr = err
			break
		}
		if payload == nil {
			break
		}
		acc.add(payload)
	}
	// The record must be queued before the client sees the end of the body.
	defer pw.CloseWithError(streamErr)

	if streamErr != nil {
		p.logger.Error("error reading upstream stream", "error", streamErr)
	}
	p.logger.Debug("streaming complete",
		"chunk_count", acc.chunks,
		"duration", time.Since(cl.start),
	)

	resp := acc.response()
	switch {
	case resp != nil:
		p.recordCall(cl, resp, streamErr)
	case streamErr != nil:
		p.recordCall(cl, nil, streamErr)
	default:
		p.recordCall(cl, nil, errors.New("upstream stream ended without a response"))
	}
}

// recordCall builds the record for cl and queues it.
func (p *Proxy) recordCall(cl *call, resp *llm.ChatResponse, err error) {
	if cl.req == nil {
		return
	}

	props := make(map[string]any, len(p.config.Properties)+3)
	for k, v := range p.config.Properties {
		props[k] = v
	}
	props["provider"] = cl.prov.Name()
	props["path"] = cl.path
	props["latency_ms"] = time.Since(cl.start).Milliseconds()

	meta := record.Meta{
		Tags:       append(append([]string{}, p.config.Tags...), cl.tags...),
		Properties: props,
	}
	rec := record.FromTurn(cl.client, cl.req, resp, err, meta)

	if addErr := p.records.Add(context.Background(), rec); addErr != nil {
		p.logger.Warn("failed to queue record",
			"table", rec.TableName(),
			"id", rec.RecordID(),
			"error", addErr,
		)
	}
}

func (p *Proxy) clientName(prov provider.Provider, override string) string {
	if name := strings.TrimSpace(override); name != "" {
		return name
	}
	if p.config.ClientName != "" {
		return p.config.ClientName
	}
	return prov.Name()
}

func (p *Proxy) resolveProvider(providerName string) (provider.Provider, string) {
	prov, ok := p.providers[providerName]
	if !ok {
		return p.defaultProv, p.config.UpstreamURL
	}
	if upstream := strings.TrimSpace(p.config.ProviderUpstreams[providerName]); upstream != "" {
		return prov, upstream
	}
	if upstream, ok := defaultUpstreams[providerName]; ok {
		return prov, upstream
	}
	return prov, p.config.UpstreamURL
}

// resolveProviderOverride splits "/providers/{name}/rest" into the provider
// name and "/rest".
func resolveProviderOverride(path string) (string, string) {
	if !strings.HasPrefix(path, providersPathPrefix) {
		return "", path
	}

	remainder := strings.TrimPrefix(path, providersPathPrefix)
	name, rest, _ := strings.Cut(remainder, "/")
	name = strings.TrimSpace(name)
	if name == "" {
		return "", path
	}
	return name, "/" + rest
}

func upstreamStatusError(code int, body []byte) error {
	var apiErr struct {
		Error any `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != nil {
		switch e := apiErr.Error.(type) {
		case string:
			msg = e
		case map[string]any:
			if m, ok := e["message"].(string); ok {
				msg = m
			}
		}
	}
	return fmt.Errorf("upstream status %d: %s", code, msg)
}
