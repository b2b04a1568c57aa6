// kofin-seed crawls the providers over listed companies to populate a
// local demo database. Interrupting with Ctrl-C finishes the company in
// flight and exits cleanly; re-running resumes from the checkpoints.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/config"
	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/ingest"
	"github.com/kofinhq/kofin/internal/providers"
	"github.com/kofinhq/kofin/internal/resolver"
)

func main() {
	var (
		companies  int
		years      int
		output     string
		reset      bool
		showStatus bool
		verbose    bool
	)

	root := &cobra.Command{
		Use:           "kofin-seed",
		Short:         "Seed a local demo database from the live providers",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), seedOpts{
				companies:  companies,
				years:      years,
				output:     output,
				reset:      reset,
				showStatus: showStatus,
				verbose:    verbose,
			})
		},
	}
	root.Flags().IntVar(&companies, "companies", 10, "number of listed companies to crawl")
	root.Flags().IntVar(&years, "years", 3, "trailing business years of filings")
	root.Flags().StringVar(&output, "output", "", "demo DB path (default <state>/demo.sqlite)")
	root.Flags().BoolVar(&reset, "reset", false, "drop checkpoints and seeded responses first")
	root.Flags().BoolVar(&showStatus, "status", false, "print seed progress and exit")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type seedOpts struct {
	companies  int
	years      int
	output     string
	reset      bool
	showStatus bool
	verbose    bool
}

func run(ctx context.Context, opts seedOpts) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	stateDir, err := config.StateDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}

	output := opts.output
	if output == "" {
		output = filepath.Join(stateDir, "demo.sqlite")
	}

	store, err := ingest.OpenStore(output)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.showStatus {
		return printStatus(ctx, store, output)
	}
	if opts.reset {
		if err := store.ResetProgress(ctx); err != nil {
			return err
		}
		fmt.Println("checkpoints cleared")
	}

	log := zap.NewNop()
	if opts.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return err
		}
	}

	creds := config.LoadCredentials()
	if !creds.HasDART() {
		return fmt.Errorf("seeding requires the filings provider; set DART_API_KEY")
	}
	clients, err := providers.Available(cfg, creds, stateDir, log)
	if err != nil {
		return err
	}
	defer providers.CloseAll(clients)

	mappings, err := loadMappings(ctx, clients, stateDir, log)
	if err != nil {
		return err
	}

	ing := ingest.New(ingest.Config{
		Store:    store,
		DART:     clients["dart"],
		KIS:      clients["kis"],
		ECOS:     clients["ecos"],
		KOSIS:    clients["kosis"],
		Mappings: mappings,
		Logger:   log,
	})

	// first Ctrl-C requests a graceful stop; a second one kills the process
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "interrupt: finishing current company (Ctrl-C again to abort)")
		ing.Interrupt()
		signal.Stop(sigCh)
	}()

	ing.SeedReference(ctx)

	res, err := ing.Run(ctx, ingest.Options{Companies: opts.companies, Years: opts.years})
	if err != nil {
		return err
	}

	fmt.Printf("companies: %d  fetched: %d  skipped: %d\n", res.CompaniesDone, res.Fetched, res.Skipped)
	if res.Interrupted {
		fmt.Println("interrupted cleanly; re-run to resume")
	}
	return nil
}

func printStatus(ctx context.Context, store *ingest.Store, output string) error {
	progress, err := store.ProgressCount(ctx)
	if err != nil {
		return err
	}
	responses, err := store.ResponseCount(ctx)
	if err != nil {
		return err
	}
	mappings, err := store.MappingCount(ctx)
	if err != nil {
		return err
	}
	lastRun, err := store.GetMeta(ctx, "last_run")
	if err != nil {
		return err
	}

	fmt.Printf("db: %s\n", output)
	fmt.Printf("checkpoints: %d\nresponses: %d\ncorp mappings: %d\n", progress, responses, mappings)
	if lastRun != "" {
		fmt.Printf("last run: %s\n", lastRun)
	}
	return nil
}

// loadMappings uses the cached corp-code file when present, downloading
// the master list otherwise.
func loadMappings(ctx context.Context, clients map[string]core.Client, stateDir string, log *zap.Logger) ([]resolver.Mapping, error) {
	r := resolver.New(log)
	cachePath := filepath.Join(stateDir, "corp-codes.json")
	if err := r.LoadFromCache(cachePath); err == nil {
		return r.Mappings(), nil
	}

	dc, ok := clients["dart"].(interface {
		DownloadCorpIndex(ctx context.Context) ([]byte, error)
	})
	if !ok {
		return nil, fmt.Errorf("no corp-code cache and no filings client to download it")
	}
	if err := r.LoadFromAPI(ctx, dc, cachePath); err != nil {
		return nil, err
	}
	return r.Mappings(), nil
}
