package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kofinhq/kofin/internal/cache"
	"github.com/kofinhq/kofin/internal/providers"
	"github.com/kofinhq/kofin/internal/ratelimit"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Per-provider daily budget and credential status",
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			type providerStatus struct {
				Configured bool              `json:"configured"`
				RateLimit  *ratelimit.Status `json:"rate_limit,omitempty"`
			}
			out := make(map[string]providerStatus, 4)

			for _, id := range []string{"dart", "kis", "ecos", "kosis"} {
				c, ok := a.clients[id]
				if !ok {
					out[id] = providerStatus{}
					continue
				}
				sr, ok := c.(providers.StatusReporter)
				if !ok {
					out[id] = providerStatus{Configured: true}
					continue
				}
				st := sr.GetStatus()
				out[id] = providerStatus{Configured: true, RateLimit: &st}
			}
			return printJSON(out)
		}),
	}
}

// diskCacher is satisfied by every concrete client via its embedded base.
type diskCacher interface {
	ID() string
	Cache() *cache.Layered
	DiskCache() *cache.Disk
}

func (a *app) cachers() []diskCacher {
	out := make([]diskCacher, 0, len(a.clients))
	for _, c := range a.clients {
		if dc, ok := c.(diskCacher); ok {
			out = append(out, dc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Disk-cache maintenance",
	}
	cmd.AddCommand(newCacheStatsCommand(), newCachePruneCommand(), newCacheInvalidateCommand())
	return cmd
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Entry and hit counts per provider cache",
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			out := map[string]cache.DiskStats{}
			for _, dc := range a.cachers() {
				stats, err := dc.DiskCache().Stats(ctx)
				if err != nil {
					return err
				}
				out[dc.ID()] = stats
			}
			return printJSON(out)
		}),
	}
}

func newCachePruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Remove expired entries (permanent entries are kept)",
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			var total int64
			for _, dc := range a.cachers() {
				n, err := dc.DiskCache().Prune(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("%s: pruned %d\n", dc.ID(), n)
				total += n
			}
			fmt.Printf("total: %d\n", total)
			return nil
		}),
	}
}

func newCacheInvalidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate <prefix>",
		Short: "Remove entries whose key starts with prefix (e.g. dart:company)",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			prefix := args[0]
			var total int64
			for _, dc := range a.cachers() {
				n, err := dc.Cache().InvalidateByPrefix(ctx, prefix)
				if err != nil {
					return err
				}
				if n > 0 {
					fmt.Printf("%s: invalidated %d\n", dc.ID(), n)
				}
				total += n
			}
			fmt.Printf("total: %d\n", total)
			return nil
		}),
	}
}
