// Package dart adapts the OpenDART corporate-filings API. DART signals
// outcomes through a body-level status field; the HTTP status is not
// reliable.
package dart

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

const defaultBaseURL = "https://opendart.fss.or.kr/api"

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
		ID:         "dart",
		Limits:     ratelimit.DefaultLimits("dart"),
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

// envelope is the body-level result header present on every response.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) Request(ctx context.Context, endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
	fetch := func(ctx context.Context) ([]byte, error) {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		q.Set("crtfc_key", c.apiKey)

		reqURL := fmt.Sprintf("%s/%s.json?%s", c.baseURL, endpoint, q.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("dart: creating request: %w", err)
		}

		body, _, err := c.FetchBytes(ctx, req)
		if err != nil {
			return nil, err
		}
		return c.mapResult(body)
	}

	return c.Execute(ctx, endpoint, params, opts, fetch)
}

// mapResult applies the DART status taxonomy: 000 success, 010 bad key,
// 011/013 no data, 020 quota exceeded, 8xx server side (retryable).
func (c *Client) mapResult(body []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, core.ParseError("dart", "unreadable response body", err)
	}
	switch env.Status {
	case "000":
		return body, nil
	case "010":
		return nil, core.AuthExpiredError("dart", "API key rejected: "+env.Message)
	case "011", "013":
		return nil, core.NotFoundError("dart", env.Message)
	case "020":
		return nil, core.RateLimitedError("dart", "request quota exceeded: "+env.Message)
	default:
		retryable := strings.HasPrefix(env.Status, "8")
		return nil, core.APIError("dart", fmt.Sprintf("status %s: %s", env.Status, env.Message), retryable)
	}
}

// DownloadCorpIndex fetches the zipped corp-code master list. The payload
// is a zip archive, not JSON, so it bypasses the response cache.
func (c *Client) DownloadCorpIndex(ctx context.Context) ([]byte, error) {
	if _, err := c.Acquire(ctx); err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/corpCode.xml?crtfc_key=%s", c.baseURL, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dart: creating corp index request: %w", err)
	}

	body, status, err := c.FetchBytes(ctx, req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, core.APIError("dart", fmt.Sprintf("corp index download failed (HTTP %d)", status), status >= 500)
	}
	// An error is reported as a JSON body instead of a zip.
	if len(body) > 0 && body[0] == '{' {
		if _, err := c.mapResult(body); err != nil {
			return nil, err
		}
	}
	return body, nil
}
