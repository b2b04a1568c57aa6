package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/core"
)

const tokenFileName = "kis-token.json"

// tokenResponse is the issuance body. The absolute expiry comes in
// provider-local wall-clock format without an offset.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	ExpiredAt   string `json:"access_token_token_expired"`
}

type ManagerConfig struct {
	Environment Environment
	AppKey      string
	AppSecret   string
	BaseURL     string
	StateDir    string
	HTTPClient  *http.Client
	Logger      *zap.Logger
}

// Manager owns the bearer token lifecycle for one KIS environment.
type Manager struct {
	env       Environment
	appKey    string
	appSecret string
	baseURL   string
	tokenPath string
	client    *http.Client
	log       *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	token   *Token
	watcher *fsnotify.Watcher
}

// NewManager loads any cached token from disk; a token for the other
// environment or past its validity margin is discarded along with the file.
func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	m := &Manager{
		env:       cfg.Environment,
		appKey:    cfg.AppKey,
		appSecret: cfg.AppSecret,
		baseURL:   cfg.BaseURL,
		tokenPath: filepath.Join(cfg.StateDir, tokenFileName),
		client:    client,
		log:       log.Named("auth"),
		now:       time.Now,
	}
	m.loadCached()
	return m
}

func (m *Manager) loadCached() {
	data, err := os.ReadFile(m.tokenPath)
	if err != nil {
		return
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		m.log.Warn("discarding unreadable token file", zap.Error(err))
		os.Remove(m.tokenPath)
		return
	}
	if !tok.ValidFor(m.env, m.now()) {
		os.Remove(m.tokenPath)
		return
	}
	m.token = &tok
}

// IsValid reports whether an in-memory token exists with more than the
// validity margin left.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token != nil && m.token.ValidFor(m.env, m.now())
}

// GetToken returns a valid bearer string, refreshing first when the cached
// token is absent or inside the validity margin.
func (m *Manager) GetToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.token != nil && m.token.ValidFor(m.env, m.now()) {
		tok := m.token.AccessToken
		m.mu.Unlock()
		return tok, nil
	}
	m.mu.Unlock()
	return m.RefreshToken(ctx)
}

// RefreshToken forces a new issuance regardless of the cached token.
// KIS rejects issuances closer than one minute apart, so failures tell the
// caller to back off.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     m.appKey,
		"appsecret":  m.appSecret,
	})
	if err != nil {
		return "", fmt.Errorf("auth: marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/oauth2/tokenP", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("auth: creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", core.NetworkError("kis", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", core.NetworkError("kis", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			return "", core.RateLimitedError("kis",
				"token issuance throttled; KIS allows one issuance per minute, back off and retry")
		}
		return "", core.APIError("kis",
			fmt.Sprintf("token issuance failed (HTTP %d); back off before retrying", resp.StatusCode),
			resp.StatusCode >= 500)
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", core.ParseError("kis", "unreadable token response", err)
	}
	if tr.AccessToken == "" {
		return "", core.ParseError("kis", "token response carried an empty access_token; back off before retrying", nil)
	}

	now := m.now()
	tok := Token{
		AccessToken: tr.AccessToken,
		TokenType:   tr.TokenType,
		IssuedAt:    now,
		ExpiresAt:   m.parseExpiry(tr, now),
		Environment: m.env,
	}

	m.mu.Lock()
	m.token = &tok
	m.mu.Unlock()

	if err := m.persist(tok); err != nil {
		m.log.Warn("persist token", zap.Error(err))
	}
	return tok.AccessToken, nil
}

// parseExpiry prefers the provider's absolute wall-clock expiry, which is
// KST without an offset; expires_in is the fallback.
func (m *Manager) parseExpiry(tr tokenResponse, now time.Time) time.Time {
	if tr.ExpiredAt != "" {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", tr.ExpiredAt, core.KST); err == nil {
			return t
		}
		m.log.Warn("unparseable token expiry", zap.String("raw", tr.ExpiredAt))
	}
	if tr.ExpiresIn > 0 {
		return now.Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return now.Add(24 * time.Hour)
}

func (m *Manager) persist(tok Token) error {
	if err := os.MkdirAll(filepath.Dir(m.tokenPath), 0o755); err != nil {
		return fmt.Errorf("auth: creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal token: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(m.tokenPath, data, 0o600); err != nil {
		return fmt.Errorf("auth: writing token file: %w", err)
	}
	return nil
}

// Watch reloads the token file when a sibling process refreshes it, so
// this process picks up the last-written token without re-issuing.
func (m *Manager) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("auth: creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(m.tokenPath)); err != nil {
		w.Close()
		return fmt.Errorf("auth: watching %s: %w", filepath.Dir(m.tokenPath), err)
	}

	m.mu.Lock()
	m.watcher = w
	m.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != m.tokenPath || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				m.reloadFromDisk()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				m.log.Warn("token watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (m *Manager) reloadFromDisk() {
	data, err := os.ReadFile(m.tokenPath)
	if err != nil {
		return
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return
	}
	if !tok.ValidFor(m.env, m.now()) {
		return
	}
	m.mu.Lock()
	m.token = &tok
	m.mu.Unlock()
	m.log.Debug("reloaded token written by sibling process")
}

// Close stops the file watcher if one was started.
func (m *Manager) Close() error {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if w != nil {
		return w.Close()
	}
	return nil
}
