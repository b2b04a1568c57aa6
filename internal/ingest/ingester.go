package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/resolver"
)

// annualReportCode is the only report seeded per year; quarterly reports
// multiply the request budget fourfold for little demo value.
const annualReportCode = "11011"

// Options scope one crawl run.
type Options struct {
	Companies int // top-N listed companies from the mapping set
	Years     int // trailing business years of filings
}

// Result summarizes a finished (or cleanly interrupted) run.
type Result struct {
	CompaniesDone int
	Skipped       int
	Fetched       int
	Interrupted   bool
}

// Ingester drives the available providers over listed companies. Missing
// clients simply skip their portion of the crawl.
type Ingester struct {
	store    *Store
	dart     core.Client
	kis      core.Client
	ecos     core.Client
	kosis    core.Client
	mappings []resolver.Mapping
	log      *zap.Logger
	now      func() time.Time

	interrupted atomic.Bool
}

type Config struct {
	Store    *Store
	DART     core.Client
	KIS      core.Client
	ECOS     core.Client
	KOSIS    core.Client
	Mappings []resolver.Mapping
	Logger   *zap.Logger
	Now      func() time.Time
}

func New(cfg Config) *Ingester {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Ingester{
		store:    cfg.Store,
		dart:     cfg.DART,
		kis:      cfg.KIS,
		ecos:     cfg.ECOS,
		kosis:    cfg.KOSIS,
		mappings: cfg.Mappings,
		log:      log.Named("ingest"),
		now:      now,
	}
}

// Interrupt requests a graceful stop: the loop finishes the company in
// flight and returns with Interrupted set. Safe from any goroutine.
func (ing *Ingester) Interrupt() { ing.interrupted.Store(true) }

// Run crawls top-N listed companies over the trailing years. Already
// checkpointed units perform no provider requests.
func (ing *Ingester) Run(ctx context.Context, opts Options) (*Result, error) {
	companies := ing.listedCompanies(opts.Companies)
	if len(companies) == 0 {
		return nil, fmt.Errorf("ingest: no listed companies in mapping set")
	}

	if err := ing.store.SaveMappings(ctx, ing.mappings); err != nil {
		return nil, err
	}

	years := ing.trailingYears(opts.Years)
	res := &Result{}

	for _, company := range companies {
		if ing.interrupted.Load() {
			res.Interrupted = true
			break
		}
		if err := ctx.Err(); err != nil {
			res.Interrupted = true
			break
		}

		if err := ing.seedCompany(ctx, company, years, res); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				res.Interrupted = true
				break
			}
			return res, err
		}
		res.CompaniesDone++
		ing.log.Info("company seeded",
			zap.String("corp_code", company.CorpCode),
			zap.String("name", company.Name),
			zap.Int("done", res.CompaniesDone),
			zap.Int("total", len(companies)))
	}

	// record the run even when the context was cancelled mid-crawl
	if err := ing.store.SetMeta(context.WithoutCancel(ctx), "last_run", ing.now().Format(time.RFC3339)); err != nil {
		return res, err
	}
	return res, nil
}

// seedCompany fans the per-company units out: one filings fetch per year
// plus one quote fetch, bounded to the providers' per-second budgets.
func (ing *Ingester) seedCompany(ctx context.Context, company resolver.Mapping, years []int, res *Result) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)

	var skipped, fetched atomic.Int64

	if ing.dart != nil {
		for _, year := range years {
			year := year
			g.Go(func() error {
				done, err := ing.store.IsDone(gctx, company.CorpCode, annualReportCode, year)
				if err != nil {
					return err
				}
				if done {
					skipped.Add(1)
					return nil
				}
				if err := ing.seedStatement(gctx, company, year); err != nil {
					return err
				}
				fetched.Add(1)
				return ing.store.MarkDone(gctx, company.CorpCode, annualReportCode, year)
			})
		}
	}

	if ing.kis != nil && company.Listed() {
		g.Go(func() error {
			key := fmt.Sprintf("kis:daily-price:%s", company.Ticker)
			seeded, err := ing.store.HasResponse(gctx, key)
			if err != nil {
				return err
			}
			if seeded {
				skipped.Add(1)
				return nil
			}
			if err := ing.seedDailyPrice(gctx, company, key); err != nil {
				return err
			}
			fetched.Add(1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	res.Skipped += int(skipped.Load())
	res.Fetched += int(fetched.Load())
	return nil
}

func (ing *Ingester) seedStatement(ctx context.Context, company resolver.Mapping, year int) error {
	raw, _, err := ing.dart.Request(ctx, "fnlttSinglAcntAll", map[string]string{
		"corp_code":  company.CorpCode,
		"bsns_year":  fmt.Sprintf("%d", year),
		"reprt_code": annualReportCode,
		"fs_div":     "CFS",
	}, &core.RequestOptions{})
	if err != nil {
		te, ok := core.AsToolError(err)
		if ok && te.Kind == core.ErrNotFound {
			// no consolidated report for this year; checkpoint an empty marker
			ing.log.Debug("no filing for year",
				zap.String("corp_code", company.CorpCode), zap.Int("year", year))
			return nil
		}
		return err
	}

	key := fmt.Sprintf("dart:fnlttSinglAcntAll:%s:%d:%s", company.CorpCode, year, annualReportCode)
	return ing.store.SaveResponse(ctx, key, raw, "dart")
}

func (ing *Ingester) seedDailyPrice(ctx context.Context, company resolver.Mapping, key string) error {
	raw, _, err := ing.kis.Request(ctx, "uapi/domestic-stock/v1/quotations/inquire-daily-price",
		map[string]string{
			"FID_COND_MRKT_DIV_CODE": "J",
			"FID_INPUT_ISCD":         company.Ticker,
			"FID_PERIOD_DIV_CODE":    "D",
			"FID_ORG_ADJ_PRC":        "0",
		}, &core.RequestOptions{TrID: "FHKST01010400"})
	if err != nil {
		te, ok := core.AsToolError(err)
		if ok && te.Kind == core.ErrNotFound {
			return nil
		}
		return err
	}
	return ing.store.SaveResponse(ctx, key, raw, "kis")
}

// SeedReference fetches the provider-independent reference data (key
// statistics, CPI) once per run; errors are logged and skipped so a
// missing optional credential never blocks the crawl.
func (ing *Ingester) SeedReference(ctx context.Context) {
	if ing.ecos != nil {
		ing.seedInto(ctx, ing.ecos, "KeyStatisticList", nil, "ecos:KeyStatisticList")
	}
	if ing.kosis != nil {
		ing.seedInto(ctx, ing.kosis, "Param/statisticsParameterData.do", map[string]string{
			"method": "getList",
			"orgId":  "101",
			"tblId":  "DT_1J22003",
		}, "kosis:cpi")
	}
}

func (ing *Ingester) seedInto(ctx context.Context, client core.Client, endpoint string, params map[string]string, key string) {
	seeded, err := ing.store.HasResponse(ctx, key)
	if err != nil || seeded {
		return
	}
	raw, _, err := client.Request(ctx, endpoint, params, &core.RequestOptions{})
	if err != nil {
		ing.log.Warn("reference seed failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := ing.store.SaveResponse(ctx, key, raw, client.ID()); err != nil {
		ing.log.Warn("reference save failed", zap.String("key", key), zap.Error(err))
	}
}

// listedCompanies picks the first n listed mappings in master-list order.
func (ing *Ingester) listedCompanies(n int) []resolver.Mapping {
	if n <= 0 {
		n = 10
	}
	out := make([]resolver.Mapping, 0, n)
	for _, m := range ing.mappings {
		if !m.Listed() {
			continue
		}
		out = append(out, m)
		if len(out) == n {
			break
		}
	}
	return out
}

// trailingYears returns the y most recent completed business years.
func (ing *Ingester) trailingYears(y int) []int {
	if y <= 0 {
		y = 3
	}
	last := ing.now().In(core.KST).Year() - 1
	years := make([]int, 0, y)
	for i := 0; i < y; i++ {
		years = append(years, last-i)
	}
	return years
}
