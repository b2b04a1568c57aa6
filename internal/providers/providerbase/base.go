// Package providerbase centralizes the request plumbing shared by every
// provider client: rate-limiter acquisition, the two-tier cache lookup and
// uniform error conversion. Provider packages embed Base and implement
// only URL construction and result-code mapping.
package providerbase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/cache"
	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/ratelimit"
)

const defaultMemoryCapacity = 256

type Config struct {
	ID             string
	Limits         ratelimit.Limits
	StateDir       string
	HTTPClient     *http.Client
	Logger         *zap.Logger
	MemoryCapacity int
}

type Base struct {
	id      string
	limiter *ratelimit.Limiter
	disk    *cache.Disk
	layered *cache.Layered
	http    *http.Client
	log     *zap.Logger
}

// New opens the provider's disk cache (<state>/<id>-cache.sqlite) and
// rate-limit state. The caller owns the Base for the process lifetime and
// releases the disk handle via Close.
func New(cfg Config) (*Base, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named(cfg.ID)

	limiter, err := ratelimit.New(cfg.ID, cfg.Limits, cfg.StateDir, log)
	if err != nil {
		return nil, err
	}

	disk, err := cache.OpenDisk(filepath.Join(cfg.StateDir, cfg.ID+"-cache.sqlite"))
	if err != nil {
		return nil, err
	}

	capacity := cfg.MemoryCapacity
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Base{
		id:      cfg.ID,
		limiter: limiter,
		disk:    disk,
		layered: cache.NewLayered(cache.NewMemory(capacity), disk, log),
		http:    client,
		log:     log,
	}, nil
}

func (b *Base) ID() string             { return b.id }
func (b *Base) Log() *zap.Logger       { return b.log }
func (b *Base) Cache() *cache.Layered  { return b.layered }
func (b *Base) DiskCache() *cache.Disk { return b.disk }

func (b *Base) Close() error { return b.disk.Close() }

// GetStatus reports the daily rate-limit budget.
func (b *Base) GetStatus() ratelimit.Status { return b.limiter.GetStatus() }

// Acquire takes one rate-limit token outside the Execute pipeline, for
// bulk endpoints that bypass the response cache.
func (b *Base) Acquire(ctx context.Context) (int, error) {
	remaining, err := b.limiter.Acquire(ctx)
	if err != nil {
		return 0, b.asToolError(err)
	}
	return remaining, nil
}

// Execute runs the uniform request pipeline: acquire a rate-limit token,
// consult the cache tiers, invoke fetch on a miss and assemble Meta.
func (b *Base) Execute(ctx context.Context, endpoint string, params map[string]string, opts *core.RequestOptions, fetch cache.Origin) (json.RawMessage, core.Meta, error) {
	if opts == nil {
		opts = &core.RequestOptions{}
	}
	start := time.Now()

	remaining, err := b.limiter.Acquire(ctx)
	if err != nil {
		return nil, core.Meta{}, b.asToolError(err)
	}

	key := opts.CacheKey
	if key == "" {
		key = cache.BuildKey(b.id, endpoint, params)
	}

	value, provenance, err := b.layered.GetOrFetch(ctx, key, cache.Options{
		TTL:          opts.TTL,
		ForceRefresh: opts.ForceRefresh,
	}, fetch)
	if err != nil {
		return nil, core.Meta{}, b.asToolError(err)
	}

	now := time.Now()
	meta := core.Meta{
		Provider:       b.id,
		Endpoint:       endpoint,
		Provenance:     provenance,
		ResponseTime:   now.Sub(start),
		DailyRemaining: remaining,
		MarketOpen:     core.MarketOpen(now),
	}
	b.log.Debug("request complete",
		zap.String("endpoint", endpoint),
		zap.String("provenance", string(provenance)),
		zap.Duration("elapsed", meta.ResponseTime))
	return value, meta, nil
}

// FetchBytes performs req and reads the body; transport-level failures
// become retryable NetworkErrors.
func (b *Base) FetchBytes(ctx context.Context, req *http.Request) ([]byte, int, error) {
	resp, err := b.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, 0, core.NetworkError(b.id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, core.NetworkError(b.id, err)
	}
	return body, resp.StatusCode, nil
}

// asToolError guarantees the request contract: every failure is a
// *core.ToolError.
func (b *Base) asToolError(err error) error {
	var te *core.ToolError
	if errors.As(err, &te) {
		return err
	}
	return core.NetworkError(b.id, err)
}
