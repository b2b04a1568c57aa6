// Package providers wires the concrete clients into a registry gated on
// available credentials. A missing credential excludes the provider; it
// never fails construction.
package providers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/config"
	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/providers/dart"
	"github.com/kofinhq/kofin/internal/providers/ecos"
	"github.com/kofinhq/kofin/internal/providers/kis"
	"github.com/kofinhq/kofin/internal/providers/kosis"
	"github.com/kofinhq/kofin/internal/ratelimit"
)

// StatusReporter is implemented by every concrete client via its embedded
// base; the CLI status command uses it.
type StatusReporter interface {
	GetStatus() ratelimit.Status
}

// Available builds a client per provider with credentials present.
func Available(cfg config.Config, creds config.Credentials, stateDir string, log *zap.Logger) (map[string]core.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second}
	clients := make(map[string]core.Client, 4)

	if creds.HasDART() {
		c, err := dart.New(dart.Config{
			APIKey:     creds.DARTKey,
			StateDir:   stateDir,
			HTTPClient: httpClient,
			Logger:     log,
		})
		if err != nil {
			closeAll(clients)
			return nil, err
		}
		clients[c.ID()] = c
	}

	if creds.HasKIS() {
		c, err := kis.New(kis.Config{
			AppKey:         creds.KISAppKey,
			AppSecret:      creds.KISAppSecret,
			Sandbox:        cfg.KISSandbox,
			StateDir:       stateDir,
			HTTPClient:     httpClient,
			Logger:         log,
			TokenSentinels: cfg.KISTokenSentinels,
		})
		if err != nil {
			closeAll(clients)
			return nil, err
		}
		clients[c.ID()] = c
	}

	if creds.HasECOS() {
		c, err := ecos.New(ecos.Config{
			APIKey:     creds.ECOSKey,
			StateDir:   stateDir,
			HTTPClient: httpClient,
			Logger:     log,
		})
		if err != nil {
			closeAll(clients)
			return nil, err
		}
		clients[c.ID()] = c
	}

	if creds.HasKOSIS() {
		c, err := kosis.New(kosis.Config{
			APIKey:     creds.KOSISKey,
			StateDir:   stateDir,
			HTTPClient: httpClient,
			Logger:     log,
		})
		if err != nil {
			closeAll(clients)
			return nil, err
		}
		clients[c.ID()] = c
	}

	return clients, nil
}

// CloseAll releases every client's disk handle.
func CloseAll(clients map[string]core.Client) {
	closeAll(clients)
}

func closeAll(clients map[string]core.Client) {
	for _, c := range clients {
		c.Close()
	}
}
