package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/tools"
)

func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <query>",
		Short: "Resolve a ticker, registration code or (fuzzy) company name",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			r, err := a.loadResolver(ctx)
			if err != nil {
				return err
			}
			res := r.Resolve(args[0])
			if res == nil {
				return fmt.Errorf("no company matches %q", args[0])
			}
			return printJSON(res)
		}),
	}
}

func newCompanyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "company <query>",
		Short: "Company overview from the filings provider",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			m, err := a.resolveCorp(ctx, args[0])
			if err != nil {
				return err
			}
			info, meta, err := a.svc.GetCompanyInfo(ctx, m.CorpCode)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Company *tools.CompanyInfo `json:"company"`
				Meta    core.Meta          `json:"meta"`
			}{info, meta})
		}),
	}
}

func newStatementsCommand() *cobra.Command {
	var year int
	var reportCode, division string
	cmd := &cobra.Command{
		Use:   "statements <query>",
		Short: "Financial statements (consolidated-first, with OFS fallback)",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			m, err := a.resolveCorp(ctx, args[0])
			if err != nil {
				return err
			}
			y := year
			if y == 0 {
				y = time.Now().In(core.KST).Year() - 1
			}
			fs, meta, err := a.svc.GetFinancialStatements(ctx, m.CorpCode, y, reportCode, division)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Statements *tools.FinancialStatements `json:"statements"`
				Meta       core.Meta                  `json:"meta"`
			}{fs, meta})
		}),
	}
	cmd.Flags().IntVar(&year, "year", 0, "business year (default: last completed)")
	cmd.Flags().StringVar(&reportCode, "report", "11011", "report code (11011 annual, 11012 H1, 11013 Q1, 11014 Q3)")
	cmd.Flags().StringVar(&division, "division", "", "CFS or OFS; empty applies the consolidated-first policy")
	return cmd
}

func newPriceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "price <query>",
		Short: "Live price snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			ticker, err := a.resolveTicker(ctx, args[0])
			if err != nil {
				return err
			}
			snap, meta, err := a.svc.GetPriceSnapshot(ctx, ticker)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Price *tools.PriceSnapshot `json:"price"`
				Meta  core.Meta            `json:"meta"`
			}{snap, meta})
		}),
	}
}

func newHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history <query>",
		Short: "Recent daily closes summarized with a sparkline",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			ticker, err := a.resolveTicker(ctx, args[0])
			if err != nil {
				return err
			}
			sum, meta, err := a.svc.GetPriceHistory(ctx, ticker)
			if err != nil {
				return err
			}
			return printJSON(struct {
				History *tools.PriceHistorySummary `json:"history"`
				Meta    core.Meta                  `json:"meta"`
			}{sum, meta})
		}),
	}
}

func newIndexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "index [kospi|kosdaq|<code>]",
		Short: "Market index snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			code := "0001"
			if len(args) == 1 {
				switch strings.ToLower(args[0]) {
				case "kospi":
					code = "0001"
				case "kosdaq":
					code = "1001"
				default:
					code = args[0]
				}
			}
			idx, meta, err := a.svc.GetMarketIndex(ctx, code)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Index *tools.MarketIndex `json:"index"`
				Meta  core.Meta          `json:"meta"`
			}{idx, meta})
		}),
	}
}

func newIndicatorCommand() *cobra.Command {
	var table, period, start, end string
	var items []string
	var current bool
	cmd := &cobra.Command{
		Use:   "indicator",
		Short: "Central-bank statistics time series",
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			ind, meta, err := a.svc.GetIndicator(ctx, tools.IndicatorQuery{
				Table:     table,
				Period:    period,
				StartDate: start,
				EndDate:   end,
				Items:     items,
				Current:   current,
			})
			if err != nil {
				return err
			}
			return printJSON(struct {
				Indicator *tools.Indicator `json:"indicator"`
				Meta      core.Meta        `json:"meta"`
			}{ind, meta})
		}),
	}
	cmd.Flags().StringVar(&table, "table", "", "statistics table code (e.g. 722Y001)")
	cmd.Flags().StringVar(&period, "period", "M", "period type: A, Q, M or D")
	cmd.Flags().StringVar(&start, "start", "", "start time code")
	cmd.Flags().StringVar(&end, "end", "", "end time code")
	cmd.Flags().StringSliceVar(&items, "item", nil, "item codes (up to 4)")
	cmd.Flags().BoolVar(&current, "current", false, "range extends into the present (shorter cache TTL)")
	cmd.MarkFlagRequired("table")
	return cmd
}

func newKeyStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keystats",
		Short: "Central-bank headline statistics",
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			stats, meta, err := a.svc.GetKeyStatistics(ctx)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Stats []tools.KeyStatistic `json:"stats"`
				Meta  core.Meta            `json:"meta"`
			}{stats, meta})
		}),
	}
}

func newCatalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog <term>",
		Short: "Search the central-bank statistics catalog",
		Args:  cobra.ExactArgs(1),
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			entries, meta, err := a.svc.SearchCatalog(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(struct {
				Entries []tools.CatalogEntry `json:"entries"`
				Meta    core.Meta            `json:"meta"`
			}{entries, meta})
		}),
	}
}

func newNatStatCommand() *cobra.Command {
	var orgID, tblID string
	cmd := &cobra.Command{
		Use:   "natstat",
		Short: "National-statistics table rows",
		RunE: runWithApp(func(ctx context.Context, a *app, args []string) error {
			rows, meta, err := a.svc.GetNationalStats(ctx, orgID, tblID, nil)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Rows []tools.NationalStatRow `json:"rows"`
				Meta core.Meta               `json:"meta"`
			}{rows, meta})
		}),
	}
	cmd.Flags().StringVar(&orgID, "org", "101", "organization id")
	cmd.Flags().StringVar(&tblID, "tbl", "", "table id (e.g. DT_1J22003)")
	cmd.MarkFlagRequired("tbl")
	return cmd
}

// resolveTicker resolves a query to a listed company's 6-digit ticker.
func (a *app) resolveTicker(ctx context.Context, query string) (string, error) {
	m, err := a.resolveCorp(ctx, query)
	if err != nil {
		return "", err
	}
	if !m.Listed() {
		return "", fmt.Errorf("%s is not listed; no quotes available", m.Name)
	}
	return m.Ticker, nil
}
