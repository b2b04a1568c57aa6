package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/core"
)

// Origin performs the upstream fetch on a cache miss.
type Origin func(ctx context.Context) ([]byte, error)

// Options control one lookup. A nil TTL means permanent: stored only on
// disk, never expired by time, removed only by explicit invalidation.
type Options struct {
	TTL          *time.Duration
	ForceRefresh bool
}

// TTL is a convenience for building Options literals.
func TTL(d time.Duration) *time.Duration { return &d }

// Layered composes memory → disk → origin with write-back.
type Layered struct {
	mem  *Memory
	disk *Disk
	log  *zap.Logger
}

func NewLayered(mem *Memory, disk *Disk, log *zap.Logger) *Layered {
	if log == nil {
		log = zap.NewNop()
	}
	return &Layered{mem: mem, disk: disk, log: log.Named("cache")}
}

// GetOrFetch looks key up through the tiers and reports which one answered.
// Origin failures are returned unchanged and never produce a cache write.
func (l *Layered) GetOrFetch(ctx context.Context, key string, opts Options, origin Origin) ([]byte, core.Provenance, error) {
	if !opts.ForceRefresh {
		if value, ok := l.mem.Get(key); ok {
			return value, core.ProvenanceMemory, nil
		}
		value, ok, err := l.disk.Get(ctx, key)
		if err != nil {
			l.log.Warn("disk cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			if opts.TTL != nil && *opts.TTL > 0 {
				l.mem.Set(key, value, *opts.TTL)
			}
			return value, core.ProvenanceDisk, nil
		}
	}

	value, err := origin(ctx)
	if err != nil {
		return nil, "", err
	}
	if ctx.Err() != nil {
		// cancelled mid-flight: do not write a cache entry
		return nil, "", ctx.Err()
	}

	l.store(ctx, key, value, opts.TTL)
	return value, core.ProvenanceOrigin, nil
}

func (l *Layered) store(ctx context.Context, key string, value []byte, ttl *time.Duration) {
	var diskTTL time.Duration // 0 = permanent
	if ttl != nil && *ttl > 0 {
		diskTTL = *ttl
		l.mem.Set(key, value, *ttl)
	}
	if err := l.disk.Set(ctx, key, value, diskTTL); err != nil {
		l.log.Warn("disk cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate removes key from both tiers.
func (l *Layered) Invalidate(ctx context.Context, key string) error {
	l.mem.Delete(key)
	return l.disk.Delete(ctx, key)
}

// InvalidateByPrefix clears both tiers for a provider/endpoint prefix and
// returns the number of disk rows removed.
func (l *Layered) InvalidateByPrefix(ctx context.Context, prefix string) (int64, error) {
	for _, k := range l.mem.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			l.mem.Delete(k)
		}
	}
	return l.disk.InvalidateByPrefix(ctx, prefix)
}
