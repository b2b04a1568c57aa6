// Package kis adapts the Korea Investment & Securities quotes API. Auth is
// an OAuth2 bearer plus app key/secret headers; every call routes through
// a tr_id. A 401 (or a 500 whose body carries a token-lifecycle sentinel)
// triggers exactly one refresh-and-retry.
package kis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/auth"
	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/providers/providerbase"
	"github.com/kofinhq/kofin/internal/ratelimit"
)

const (
	ProductionBaseURL = "https://openapi.koreainvestment.com:9443"
	SandboxBaseURL    = "https://openapivts.koreainvestment.com:29443"

	rateLimitMsgCd = "EGW00201"
)

type Config struct {
	AppKey     string
	AppSecret  string
	Sandbox    bool
	BaseURL    string // overrides the environment default, for tests
	StateDir   string
	HTTPClient *http.Client
	Logger     *zap.Logger
	// TokenSentinels are HTTP 500 body substrings treated as an expired
	// token. Defaults cover the known EGW0012x codes.
	TokenSentinels []string
}

type Client struct {
	*providerbase.Base
	appKey    string
	appSecret string
	baseURL   string
	tokens    *auth.Manager
	sentinels []string
}

func New(cfg Config) (*Client, error) {
	base, err := providerbase.New(providerbase.Config{
		ID:         "kis",
		Limits:     ratelimit.DefaultLimits("kis"),
		StateDir:   cfg.StateDir,
		HTTPClient: cfg.HTTPClient,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	env := auth.EnvProduction
	baseURL := ProductionBaseURL
	if cfg.Sandbox {
		env = auth.EnvSandbox
		baseURL = SandboxBaseURL
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	sentinels := cfg.TokenSentinels
	if len(sentinels) == 0 {
		sentinels = []string{"EGW00121", "EGW00122", "EGW00123"}
	}

	tokens := auth.NewManager(auth.ManagerConfig{
		Environment: env,
		AppKey:      cfg.AppKey,
		AppSecret:   cfg.AppSecret,
		BaseURL:     baseURL,
		StateDir:    cfg.StateDir,
		HTTPClient:  cfg.HTTPClient,
		Logger:      cfg.Logger,
	})

	return &Client{
		Base:      base,
		appKey:    cfg.AppKey,
		appSecret: cfg.AppSecret,
		baseURL:   baseURL,
		tokens:    tokens,
		sentinels: sentinels,
	}, nil
}

// Tokens exposes the auth manager so callers can start the file watcher.
func (c *Client) Tokens() *auth.Manager { return c.tokens }

func (c *Client) Close() error {
	c.tokens.Close()
	return c.Base.Close()
}

// callResult is the per-call result header: rt_cd "0" means success.
type callResult struct {
	RtCd  string `json:"rt_cd"`
	MsgCd string `json:"msg_cd"`
	Msg1  string `json:"msg1"`
}

func (c *Client) Request(ctx context.Context, endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
	if opts == nil {
		opts = &core.RequestOptions{}
	}
	fetch := func(ctx context.Context) ([]byte, error) {
		body, status, err := c.attempt(ctx, endpoint, params, opts, false)
		if err != nil {
			return nil, err
		}
		if c.tokenRejected(status, body) {
			if _, err := c.tokens.RefreshToken(ctx); err != nil {
				return nil, err
			}
			body, status, err = c.attempt(ctx, endpoint, params, opts, true)
			if err != nil {
				return nil, err
			}
			if status == http.StatusUnauthorized {
				return nil, core.AuthExpiredError("kis", "request rejected again after token refresh")
			}
		}
		return c.mapResult(body, status)
	}

	return c.Execute(ctx, endpoint, params, opts, fetch)
}

func (c *Client) attempt(ctx context.Context, endpoint string, params map[string]string, opts *core.RequestOptions, retry bool) ([]byte, int, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, 0, err
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var req *http.Request
	if method == http.MethodGet {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimPrefix(endpoint, "/")+"?"+q.Encode(), nil)
	} else {
		var payload []byte
		payload, err = json.Marshal(params)
		if err == nil {
			req, err = http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimPrefix(endpoint, "/"), bytes.NewReader(payload))
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("kis: creating request: %w", err)
	}

	req.Header.Set("content-type", "application/json; charset=utf-8")
	req.Header.Set("authorization", "Bearer "+token)
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	if opts.TrID != "" {
		req.Header.Set("tr_id", opts.TrID)
	}
	if retry {
		c.Log().Debug("retrying after token refresh", zap.String("endpoint", endpoint))
	}

	return c.FetchBytes(ctx, req)
}

// tokenRejected covers the plain 401 and the pragmatic case of a 500 whose
// body names a token-lifecycle error code.
func (c *Client) tokenRejected(status int, body []byte) bool {
	if status == http.StatusUnauthorized {
		return true
	}
	if status == http.StatusInternalServerError {
		s := string(body)
		for _, sentinel := range c.sentinels {
			if strings.Contains(s, sentinel) {
				return true
			}
		}
	}
	return false
}

func (c *Client) mapResult(body []byte, status int) ([]byte, error) {
	if status == http.StatusUnauthorized {
		return nil, core.AuthExpiredError("kis", "bearer token rejected")
	}
	if status < 200 || status >= 300 {
		return nil, core.APIError("kis", fmt.Sprintf("HTTP %d", status), status >= 500)
	}

	var res callResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, core.ParseError("kis", "unreadable response body", err)
	}
	if res.RtCd == "0" {
		return body, nil
	}
	if res.MsgCd == rateLimitMsgCd || strings.Contains(res.Msg1, "초당 거래건수") {
		return nil, core.RateLimitedError("kis", res.Msg1)
	}
	return nil, core.APIError("kis", fmt.Sprintf("rt_cd %s (%s): %s", res.RtCd, res.MsgCd, res.Msg1), false)
}
