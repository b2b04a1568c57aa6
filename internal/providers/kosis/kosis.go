// Package kosis adapts the KOSIS national-statistics API. A success is a
// JSON array (empty means no data); an error is an object with err/errMsg
// fields.
package kosis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/providers/providerbase"
	"github.com/kofinhq/kofin/internal/ratelimit"
)

const defaultBaseURL = "https://kosis.kr/openapi"

type Config struct {
	APIKey     string
	BaseURL    string
	StateDir   string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

type Client struct {
	*providerbase.Base
	apiKey  string
	baseURL string
}

func New(cfg Config) (*Client, error) {
	base, err := providerbase.New(providerbase.Config{
		ID:         "kosis",
		Limits:     ratelimit.DefaultLimits("kosis"),
		StateDir:   cfg.StateDir,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{Base: base, apiKey: cfg.APIKey, baseURL: baseURL}, nil
}

// errBody is the error-object shape; a successful call never returns an
// object at the top level.
type errBody struct {
	Err    string `json:"err"`
	ErrMsg string `json:"errMsg"`
}

func (c *Client) Request(ctx context.Context, endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		q.Set("apiKey", c.apiKey)
		q.Set("format", "json")
		q.Set("jsonVD", "Y")

		reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, strings.TrimPrefix(endpoint, "/"), q.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("kosis: creating request: %w", err)
		}

		body, status, err := c.FetchBytes(ctx, req)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, core.APIError("kosis", fmt.Sprintf("HTTP %d", status), status >= 500)
		}
		return c.mapResult(body)
	}

	return c.Execute(ctx, endpoint, params, opts, fetch)
}

func (c *Client) mapResult(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, core.ParseError("kosis", "empty response body", nil)
	}

	if trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, core.ParseError("kosis", "unreadable response array", err)
		}
		if len(rows) == 0 {
			return nil, core.NotFoundError("kosis", "no rows for this query")
		}
		return body, nil
	}

	var eb errBody
	if err := json.Unmarshal(trimmed, &eb); err != nil {
		return nil, core.ParseError("kosis", "unreadable response body", err)
	}
	if eb.Err == "" && eb.ErrMsg == "" {
		// an object without error fields is still not a legal success shape
		return nil, core.ParseError("kosis", "unexpected object response", nil)
	}
	switch {
	case strings.EqualFold(eb.Err, "AUTH") || strings.Contains(eb.ErrMsg, "인증"):
		return nil, core.AuthExpiredError("kosis", eb.ErrMsg)
	case strings.Contains(strings.ToLower(eb.ErrMsg), "limit") || strings.Contains(eb.ErrMsg, "초과"):
		return nil, core.RateLimitedError("kosis", eb.ErrMsg)
	default:
		return nil, core.APIError("kosis", fmt.Sprintf("%s: %s", eb.Err, eb.ErrMsg), false)
	}
}
