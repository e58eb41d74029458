package sequin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sequinstream/sequin-go/pkg/httpclient"
	"github.com/tidwall/gjson"
)

// Client talks to a Sequin server. It holds no mutable state after
// construction and is safe for concurrent use.
type Client struct {
	baseURL string
	http    httpclient.Client
	log     Logger
}

// NewClient builds a client. No network I/O happens here.
func NewClient(opts ...Option) *Client {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = httpclient.NewRestyClient(0)
	}
	log := cfg.log
	if log == nil {
		log = noopLogger{}
	}

	return &Client{
		baseURL: resolveBaseURL(cfg.baseURL),
		http:    httpClient,
		log:     log,
	}
}

// BaseURL returns the base URL resolved at construction.
func (c *Client) BaseURL() string {
	return c.baseURL
}

var jsonHeaders = map[string]string{
	"Content-Type": "application/json",
	"Accept":       "application/json",
}

// request executes one JSON call and decodes the (possibly data-enveloped)
// payload into out. Every failure is returned as a *Error.
func (c *Client) request(ctx context.Context, method, endpoint string, body, out any) *Error {
	if ctx == nil {
		ctx = context.Background()
	}
	url := c.baseURL + endpoint

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return newError(http.StatusBadRequest, fmt.Sprintf("encode request: %v", err))
		}
		payload = raw
	}

	c.log.DebugObj("sequin request", "sequin_request", map[string]any{
		"method": method,
		"url":    url,
	})

	resp, err := c.http.Do(ctx, method, url, jsonHeaders, payload)
	if err != nil {
		serr := transportError(c.baseURL, err)
		c.log.WarnObj("sequin request failed", "sequin_transport_error", map[string]any{
			"method": method,
			"url":    url,
			"error":  err.Error(),
		})
		return serr
	}

	status := resp.StatusCode()
	raw := resp.Body()
	if status < 200 || status > 299 {
		summary := unknownErrorSummary
		if gjson.ValidBytes(raw) {
			if s := gjson.GetBytes(raw, "summary"); s.Exists() && s.String() != "" {
				summary = s.String()
			}
		}
		c.log.DebugObj("sequin request rejected", "sequin_response_error", map[string]any{
			"method":  method,
			"url":     url,
			"status":  status,
			"summary": summary,
		})
		return newError(status, summary)
	}

	if out == nil {
		return nil
	}
	if !gjson.ValidBytes(raw) {
		return newError(status, "decode response: body is not valid JSON")
	}
	data := raw
	if parsed := gjson.ParseBytes(raw); parsed.IsObject() {
		if env := parsed.Get("data"); env.Exists() {
			data = []byte(env.Raw)
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return newError(status, fmt.Sprintf("decode response: %v", err))
	}
	return nil
}
