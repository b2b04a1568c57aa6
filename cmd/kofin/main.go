package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/auth"
	"github.com/kofinhq/kofin/internal/config"
	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/providers"
	"github.com/kofinhq/kofin/internal/resolver"
	"github.com/kofinhq/kofin/internal/tools"
	"github.com/kofinhq/kofin/internal/version"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:           "kofin",
		Short:         "kofin queries Korean financial data through a cached, rate-limited provider layer.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newResolveCommand(),
		newCompanyCommand(),
		newStatementsCommand(),
		newPriceCommand(),
		newHistoryCommand(),
		newIndexCommand(),
		newIndicatorCommand(),
		newKeyStatsCommand(),
		newCatalogCommand(),
		newNatStatCommand(),
		newStatusCommand(),
		newCacheCommand(),
		newVersionCommand(),
	)

	if err := root.Execute(); err != nil {
		renderError(err)
		os.Exit(1)
	}
}

// app is the composition root shared by the subcommands.
type app struct {
	cfg      config.Config
	creds    config.Credentials
	stateDir string
	clients  map[string]core.Client
	svc      *tools.Service
	log      *zap.Logger
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(os.Getenv("KIS_SANDBOX")); v == "1" || strings.EqualFold(v, "true") {
		cfg.KISSandbox = true
	}

	stateDir, err := config.StateDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	log := zap.NewNop()
	if verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	creds := config.LoadCredentials()
	clients, err := providers.Available(cfg, creds, stateDir, log)
	if err != nil {
		return nil, err
	}

	// pick up tokens refreshed by sibling processes
	if tw, ok := clients["kis"].(interface{ Tokens() *auth.Manager }); ok {
		if err := tw.Tokens().Watch(); err != nil {
			log.Debug("token watch unavailable", zap.Error(err))
		}
	}

	svc := tools.New(tools.Config{
		DART:   clients["dart"],
		KIS:    clients["kis"],
		ECOS:   clients["ecos"],
		KOSIS:  clients["kosis"],
		Logger: log,
	})

	return &app{
		cfg:      cfg,
		creds:    creds,
		stateDir: stateDir,
		clients:  clients,
		svc:      svc,
		log:      log,
	}, nil
}

func (a *app) Close() {
	providers.CloseAll(a.clients)
	a.log.Sync()
}

func (a *app) corpCodesPath() string {
	return filepath.Join(a.stateDir, "corp-codes.json")
}

// loadResolver reads the cached mapping set, downloading it on first use.
func (a *app) loadResolver(ctx context.Context) (*resolver.Resolver, error) {
	r := resolver.New(a.log)
	if err := r.LoadFromCache(a.corpCodesPath()); err == nil {
		return r, nil
	}

	dc, ok := a.clients["dart"].(interface {
		DownloadCorpIndex(ctx context.Context) ([]byte, error)
	})
	if !ok {
		return nil, fmt.Errorf("no corp-code cache and no filings credential; set DART_API_KEY")
	}
	if err := r.LoadFromAPI(ctx, dc, a.corpCodesPath()); err != nil {
		return nil, err
	}
	return r, nil
}

// resolveCorp turns a user query into a registration code.
func (a *app) resolveCorp(ctx context.Context, query string) (resolver.Mapping, error) {
	r, err := a.loadResolver(ctx)
	if err != nil {
		return resolver.Mapping{}, err
	}
	res := r.Resolve(query)
	if res == nil {
		return resolver.Mapping{}, fmt.Errorf("no company matches %q", query)
	}
	return res.Mapping, nil
}

// runWithApp wraps a subcommand body with composition-root setup/teardown.
func runWithApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a, args)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// renderError prints the typed taxonomy with its remediation hint.
func renderError(err error) {
	if te, ok := core.AsToolError(err); ok {
		fmt.Fprintf(os.Stderr, "Error (%s, %s): %s\n  %s\n", te.Provider, te.Kind, te.Message, te.Hint())
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.String())
		},
	}
}
