// Package restclient is the JSON-over-HTTP client shared by the backends
// reached through REST APIs (dataset hub, annotation platform, docling-serve).
// Requests are retried with exponential backoff on transport errors, 429 and
// 5xx responses; other 4xx responses fail immediately.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 60 * time.Second

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// Client sends requests relative to BaseURL.
type Client struct {
	BaseURL string
	HTTP    *http.Client

	// Header is added to every request sent to BaseURL.
	Header http.Header

	// MaxRetries bounds retries of a failing request. Zero disables retries.
	MaxRetries uint64
}

// New returns a client with a default HTTP timeout and three retries.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTP:       &http.Client{Timeout: DefaultTimeout},
		Header:     http.Header{},
		MaxRetries: 3,
	}
}

// Request describes one API call.
type Request struct {
	Method string

	// Path is appended to BaseURL unless it is an absolute URL.
	Path string

	// JSON is encoded as the request body when non-nil.
	JSON any

	// Body is sent verbatim with ContentType when JSON is nil.
	Body        []byte
	ContentType string

	Header http.Header
}

// Do sends req and decodes a JSON response into out when out is non-nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body := req.Body
	contentType := req.ContentType
	if req.JSON != nil {
		var err error
		body, err = json.Marshal(req.JSON)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		contentType = "application/json"
	}

	url := req.Path
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = c.BaseURL + req.Path
	}

	var respBody []byte
	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		// Default headers carry credentials; absolute URLs elsewhere
		// (e.g. presigned upload targets) must not receive them.
		if strings.HasPrefix(url, c.BaseURL) {
			for k, vs := range c.Header {
				for _, v := range vs {
					httpReq.Header.Add(k, v)
				}
			}
		}
		for k, vs := range req.Header {
			httpReq.Header.Del(k)
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		if httpReq.Header.Get("Accept") == "" {
			httpReq.Header.Set("Accept", "application/json")
		}

		resp, err := c.HTTP.Do(httpReq)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode >= 400 {
			statusErr := &StatusError{Method: req.Method, URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}

		respBody = data
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 10 * time.Second
	eb.MaxElapsedTime = 2 * time.Minute
	b := backoff.WithContext(backoff.WithMaxRetries(eb, c.MaxRetries), ctx)

	if err := backoff.Retry(operation, b); err != nil {
		return err
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
