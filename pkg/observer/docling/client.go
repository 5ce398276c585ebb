package docling

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cfahlgren1/observers/pkg/restclient"
)

// DefaultTimeout bounds a single conversion request. Large documents take
// minutes on CPU-only servers.
const DefaultTimeout = 10 * time.Minute

// Conversion statuses reported by docling-serve.
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusFailure        = "failure"
	StatusSkipped        = "skipped"
)

// Source kinds.
const (
	SourceHTTP = "http"
	SourceFile = "file"
)

// Source is one document to convert, either fetched by the server from a
// URL or uploaded inline as base64.
type Source struct {
	Kind         string            `json:"kind"`
	URL          string            `json:"url,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Base64String string            `json:"base64_string,omitempty"`
	Filename     string            `json:"filename,omitempty"`
}

// URLSource converts the document at url.
func URLSource(url string) Source {
	return Source{Kind: SourceHTTP, URL: url}
}

// Options are docling-serve conversion options. Zero fields use the
// server's defaults.
type Options struct {
	FromFormats             []string `json:"from_formats,omitempty"`
	ToFormats               []string `json:"to_formats,omitempty"`
	ImageExportMode         string   `json:"image_export_mode,omitempty"`
	DoOCR                   *bool    `json:"do_ocr,omitempty"`
	ForceOCR                *bool    `json:"force_ocr,omitempty"`
	OCREngine               string   `json:"ocr_engine,omitempty"`
	OCRLang                 []string `json:"ocr_lang,omitempty"`
	PDFBackend              string   `json:"pdf_backend,omitempty"`
	TableMode               string   `json:"table_mode,omitempty"`
	PageRange               []int    `json:"page_range,omitempty"`
	IncludeImages           *bool    `json:"include_images,omitempty"`
	ImagesScale             float64  `json:"images_scale,omitempty"`
	DoTableStructure        *bool    `json:"do_table_structure,omitempty"`
	DoPictureClassification *bool    `json:"do_picture_classification,omitempty"`
	DoPictureDescription    *bool    `json:"do_picture_description,omitempty"`
}

type convertRequest struct {
	Sources []Source `json:"sources"`
	Options Options  `json:"options"`
}

// Result is the response of a conversion.
type Result struct {
	Document       ExportDocument `json:"document"`
	Status         string         `json:"status"`
	Errors         []ErrorItem    `json:"errors"`
	ProcessingTime float64        `json:"processing_time"`
}

// ExportDocument carries the requested export formats.
type ExportDocument struct {
	Filename    string    `json:"filename"`
	JSONContent *Document `json:"json_content"`
	MDContent   string    `json:"md_content,omitempty"`
	TextContent string    `json:"text_content,omitempty"`
	HTMLContent string    `json:"html_content,omitempty"`
}

// ErrorItem is one conversion error.
type ErrorItem struct {
	ComponentType string `json:"component_type"`
	ModuleName    string `json:"module_name"`
	ErrorMessage  string `json:"error_message"`
}

// Client talks to a docling-serve instance.
type Client struct {
	rest *restclient.Client
}

// NewClient returns a client for the docling-serve instance at baseURL. A
// non-empty apiKey is sent as X-Api-Key.
func NewClient(baseURL, apiKey string) *Client {
	rest := restclient.New(baseURL)
	rest.HTTP.Timeout = DefaultTimeout
	if apiKey != "" {
		rest.Header.Set("X-Api-Key", apiKey)
	}
	return &Client{rest: rest}
}

// WithHTTPClient replaces the HTTP client, for tests and custom transports.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.rest.HTTP = hc
	return c
}

// ConvertSource converts sources. A failed conversion is an error; partial
// successes are returned with their errors listed.
func (c *Client) ConvertSource(ctx context.Context, sources []Source, opts Options) (*Result, error) {
	var res Result
	err := c.rest.Do(ctx, restclient.Request{
		Method: http.MethodPost,
		Path:   "/v1/convert/source",
		JSON:   convertRequest{Sources: sources, Options: opts},
	}, &res)
	if err != nil {
		return nil, fmt.Errorf("converting document: %w", err)
	}

	if res.Status == StatusFailure {
		msg := "conversion failed"
		if len(res.Errors) > 0 {
			msg = res.Errors[0].ErrorMessage
		}
		return &res, fmt.Errorf("converting %s: %s", res.Document.Filename, msg)
	}
	return &res, nil
}

// ConvertFile uploads the contents of r as filename and converts it.
func (c *Client) ConvertFile(ctx context.Context, filename string, r io.Reader, opts Options) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	return c.ConvertSource(ctx, []Source{{
		Kind:         SourceFile,
		Base64String: base64.StdEncoding.EncodeToString(raw),
		Filename:     filename,
	}}, opts)
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) error {
	return c.rest.Do(ctx, restclient.Request{Method: http.MethodGet, Path: "/health"}, nil)
}
