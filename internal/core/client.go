package core

import (
	"context"
	"encoding/json"
	"time"
)

// RequestOptions tune one request. A nil TTL caches the response
// permanently (disk only); Method and TrID apply to the quotes provider.
type RequestOptions struct {
	TTL          *time.Duration
	CacheKey     string
	ForceRefresh bool
	Method       string
	TrID         string
}

// Client is the uniform request contract every provider adapter satisfies.
// On failure the returned error is always a *ToolError and the payload is
// nil; on success Meta is fully populated.
type Client interface {
	ID() string

	Request(ctx context.Context, endpoint string, params map[string]string, opts *RequestOptions) (json.RawMessage, Meta, error)

	Close() error
}
