package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kofinhq/kofin/internal/core"
)

func testLayered(t *testing.T) *Layered {
	t.Helper()
	d, err := OpenDisk(filepath.Join(t.TempDir(), "cache.sqlite"))
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewLayered(NewMemory(16), d, nil)
}

func TestGetOrFetch_Provenance(t *testing.T) {
	l := testLayered(t)
	ctx := context.Background()
	opts := Options{TTL: TTL(time.Minute)}
	calls := 0
	origin := func(context.Context) ([]byte, error) {
		calls++
		return []byte("payload"), nil
	}

	v, prov, err := l.GetOrFetch(ctx, "dart:company:k", opts, origin)
	if err != nil {
		t.Fatalf("cold fetch: %v", err)
	}
	if prov != core.ProvenanceOrigin || string(v) != "payload" {
		t.Errorf("cold = %q via %s", v, prov)
	}

	_, prov, err = l.GetOrFetch(ctx, "dart:company:k", opts, origin)
	if err != nil {
		t.Fatalf("warm fetch: %v", err)
	}
	if prov != core.ProvenanceMemory {
		t.Errorf("warm provenance = %s, want memory", prov)
	}
	if calls != 1 {
		t.Errorf("origin calls = %d, want 1", calls)
	}

	// drop the memory tier: next hit must come from disk
	l.mem.Clear()
	_, prov, err = l.GetOrFetch(ctx, "dart:company:k", opts, origin)
	if err != nil {
		t.Fatalf("disk fetch: %v", err)
	}
	if prov != core.ProvenanceDisk {
		t.Errorf("provenance = %s, want disk", prov)
	}

	// invalidation forces a fresh origin call
	if _, err := l.InvalidateByPrefix(ctx, "dart:company:"); err != nil {
		t.Fatalf("InvalidateByPrefix: %v", err)
	}
	_, prov, err = l.GetOrFetch(ctx, "dart:company:k", opts, origin)
	if err != nil {
		t.Fatalf("post-invalidate fetch: %v", err)
	}
	if prov != core.ProvenanceOrigin {
		t.Errorf("provenance = %s, want origin after invalidation", prov)
	}
	if calls != 2 {
		t.Errorf("origin calls = %d, want 2", calls)
	}
}

func TestGetOrFetch_ForceRefresh(t *testing.T) {
	l := testLayered(t)
	ctx := context.Background()
	calls := 0
	origin := func(context.Context) ([]byte, error) {
		calls++
		return []byte("v"), nil
	}

	opts := Options{TTL: TTL(time.Minute)}
	if _, _, err := l.GetOrFetch(ctx, "k", opts, origin); err != nil {
		t.Fatal(err)
	}
	opts.ForceRefresh = true
	_, prov, err := l.GetOrFetch(ctx, "k", opts, origin)
	if err != nil {
		t.Fatal(err)
	}
	if prov != core.ProvenanceOrigin || calls != 2 {
		t.Errorf("force refresh: prov = %s, calls = %d", prov, calls)
	}

	// and it still wrote through
	opts.ForceRefresh = false
	_, prov, _ = l.GetOrFetch(ctx, "k", opts, origin)
	if prov != core.ProvenanceMemory {
		t.Errorf("after force refresh: prov = %s, want memory", prov)
	}
}

func TestGetOrFetch_PermanentSkipsMemory(t *testing.T) {
	l := testLayered(t)
	ctx := context.Background()
	origin := func(context.Context) ([]byte, error) { return []byte("v"), nil }

	// nil TTL = permanent: disk only
	if _, _, err := l.GetOrFetch(ctx, "perm", Options{}, origin); err != nil {
		t.Fatal(err)
	}
	if l.mem.Has("perm") {
		t.Error("permanent entry was written to memory")
	}
	_, prov, err := l.GetOrFetch(ctx, "perm", Options{}, origin)
	if err != nil {
		t.Fatal(err)
	}
	if prov != core.ProvenanceDisk {
		t.Errorf("provenance = %s, want disk", prov)
	}
}

func TestGetOrFetch_OriginErrorNotCached(t *testing.T) {
	l := testLayered(t)
	ctx := context.Background()
	wantErr := core.APIError("dart", "boom", false)
	origin := func(context.Context) ([]byte, error) { return nil, wantErr }

	_, _, err := l.GetOrFetch(ctx, "k", Options{TTL: TTL(time.Minute)}, origin)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped origin error", err)
	}
	if l.mem.Has("k") {
		t.Error("failed fetch wrote a memory entry")
	}
	if ok, _ := l.disk.Has(ctx, "k"); ok {
		t.Error("failed fetch wrote a disk entry")
	}
}

func TestGetOrFetch_CancelledNotCached(t *testing.T) {
	l := testLayered(t)
	ctx, cancel := context.WithCancel(context.Background())
	origin := func(context.Context) ([]byte, error) {
		cancel() // cancellation lands while the fetch is in flight
		return []byte("v"), nil
	}

	_, _, err := l.GetOrFetch(ctx, "k", Options{TTL: TTL(time.Minute)}, origin)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ok, _ := l.disk.Has(context.Background(), "k"); ok {
		t.Error("cancelled fetch wrote a cache entry")
	}
}
