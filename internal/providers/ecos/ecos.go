// Package ecos adapts the Bank of Korea statistics API. Auth and all
// arguments travel as URL path segments; errors come back as a body-level
// RESULT object with sentinel-prefixed codes.
package ecos

import (
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

const defaultBaseURL = "https://ecos.bok.or.kr/api"

// Well-known endpoints.
const (
	EndpointStatisticSearch = "StatisticSearch" // time series
	EndpointStatisticWord   = "StatisticWord"   // catalog search
	EndpointKeyStatistics   = "KeyStatisticList"
	EndpointStatisticTable  = "StatisticTableList"
)

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
		ID:         "ecos",
		Limits:     ratelimit.DefaultLimits("ecos"),
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

// resultHeader is the body-level error object some responses carry.
type resultHeader struct {
	Result struct {
		Code    string `json:"CODE"`
		Message string `json:"MESSAGE"`
	} `json:"RESULT"`
}

// Request builds the path-segment URL for endpoint. Recognized params:
// start/end (paging, default 1/100); for StatisticSearch: table, period,
// start_date, end_date, item1..item4; for StatisticWord: term. Trailing
// empty segments are trimmed.
func (c *Client) Request(ctx context.Context, endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		reqURL, err := c.buildURL(endpoint, params)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("ecos: creating request: %w", err)
		}

		body, status, err := c.FetchBytes(ctx, req)
		if err != nil {
			return nil, err
		}
		if status < 200 || status >= 300 {
			return nil, core.APIError("ecos", fmt.Sprintf("HTTP %d", status), status >= 500)
		}
		return c.mapResult(body)
	}

	return c.Execute(ctx, endpoint, params, opts, fetch)
}

func (c *Client) buildURL(endpoint string, params map[string]string) (string, error) {
	start := params["start"]
	if start == "" {
		start = "1"
	}
	end := params["end"]
	if end == "" {
		end = "100"
	}

	segments := []string{c.baseURL, endpoint, c.apiKey, "json", "kr", start, end}

	switch endpoint {
	case EndpointStatisticSearch:
		extra := []string{
			params["table"],
			params["period"],
			params["start_date"],
			params["end_date"],
			params["item1"],
			params["item2"],
			params["item3"],
			params["item4"],
		}
		segments = append(segments, trimTrailingEmpty(extra)...)
	case EndpointStatisticWord:
		term := strings.TrimSpace(params["term"])
		if term == "" {
			return "", core.ParseError("ecos", "catalog search requires a term", nil)
		}
		segments = append(segments, url.PathEscape(term))
	}

	return strings.Join(segments, "/"), nil
}

// trimTrailingEmpty drops empty segments from the tail; interior empties
// would corrupt the path and are rejected upstream.
func trimTrailingEmpty(segments []string) []string {
	n := len(segments)
	for n > 0 && segments[n-1] == "" {
		n--
	}
	return segments[:n]
}

func (c *Client) mapResult(body []byte) ([]byte, error) {
	var header resultHeader
	if err := json.Unmarshal(body, &header); err != nil {
		return nil, core.ParseError("ecos", "unreadable response body", err)
	}
	code := header.Result.Code
	if code == "" {
		return body, nil
	}
	msg := header.Result.Message
	switch {
	case strings.HasPrefix(code, "INFO-100"):
		return nil, core.AuthExpiredError("ecos", msg)
	case strings.HasPrefix(code, "INFO-200"):
		return nil, core.NotFoundError("ecos", msg)
	case strings.HasPrefix(code, "INFO-300"):
		return nil, core.RateLimitedError("ecos", msg)
	default:
		return nil, core.APIError("ecos", fmt.Sprintf("%s: %s", code, msg), false)
	}
}
