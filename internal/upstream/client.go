// Package upstream is the shared HTTP client the provider adapters speak
// through: JSON in, JSON out, classified errors, bounded response bodies.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/omnidex/swapgate/internal/domain"
)

// maxBodyBytes bounds how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// DefaultTimeout is the per-call ceiling when the adapter does not override.
const DefaultTimeout = 10 * time.Second

// Client wraps one upstream API. Headers are attached to every request; API
// keys live here and are never logged.
type Client struct {
	name    string
	baseURL string
	headers map[string]string
	http    *http.Client
}

// New builds a client for one upstream service.
func New(name, baseURL string, timeout time.Duration, headers map[string]string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		headers: headers,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

// Timeout returns the per-call ceiling.
func (c *Client) Timeout() time.Duration { return c.http.Timeout }

// GetJSON issues a GET with query parameters and decodes the JSON response
// into out. out may be nil when only the status matters.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.WrapError(domain.ErrInternal, "building request", err)
	}
	return c.do(req, out)
}

// PostJSON issues a POST with a JSON body and decodes the JSON response.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return domain.WrapError(domain.ErrInternal, "encoding request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return domain.WrapError(domain.ErrInternal, "building request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrNetwork, fmt.Sprintf("%s request failed", c.name), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.WrapError(domain.ErrNetwork, fmt.Sprintf("reading %s response", c.name), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.UpstreamError(c.name, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.WrapError(domain.ErrUpstream, fmt.Sprintf("decoding %s response", c.name), err)
	}
	return nil
}
