package ingest

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/resolver"
)

type countingClient struct {
	id       string
	requests atomic.Int64
	hook     func() // runs on every request, before responding
}

func (c *countingClient) ID() string   { return c.id }
func (c *countingClient) Close() error { return nil }

func (c *countingClient) Request(ctx context.Context, endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
	c.requests.Add(1)
	if c.hook != nil {
		c.hook()
	}
	return json.RawMessage(`{"status":"000","list":[]}`), core.Meta{Provider: c.id}, nil
}

func testMappings() []resolver.Mapping {
	return []resolver.Mapping{
		{CorpCode: "00000001", Name: "회사일", Ticker: "000001"},
		{CorpCode: "00000002", Name: "회사이", Ticker: "000002"},
		{CorpCode: "00000009", Name: "비상장사"}, // unlisted, never crawled
		{CorpCode: "00000003", Name: "회사삼", Ticker: "000003"},
		{CorpCode: "00000004", Name: "회사사", Ticker: "000004"},
		{CorpCode: "00000005", Name: "회사오", Ticker: "000005"},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(filepath.Join(t.TempDir(), "demo.sqlite"))
	if err != nil {
		t.Fatalf("OpenStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 16, 12, 0, 0, 0, core.KST)
}

func TestRunSeedsAndCheckpoints(t *testing.T) {
	store := openTestStore(t)
	dart := &countingClient{id: "dart"}
	kis := &countingClient{id: "kis"}
	ing := New(Config{Store: store, DART: dart, KIS: kis, Mappings: testMappings(), Now: fixedNow})

	res, err := ing.Run(context.Background(), Options{Companies: 2, Years: 2})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.CompaniesDone != 2 || res.Interrupted {
		t.Errorf("result = %+v, want 2 companies, no interrupt", res)
	}
	// 2 companies x (2 filing years + 1 price fetch)
	if got := dart.requests.Load() + kis.requests.Load(); got != 6 {
		t.Errorf("provider requests = %d, want 6", got)
	}

	progress, err := store.ProgressCount(context.Background())
	if err != nil {
		t.Fatalf("ProgressCount() error = %v", err)
	}
	if progress != 4 {
		t.Errorf("progress rows = %d, want 4", progress)
	}

	// trailing years are the completed ones: 2024 and 2023
	done, err := store.IsDone(context.Background(), "00000001", annualReportCode, 2024)
	if err != nil || !done {
		t.Errorf("IsDone(2024) = %v, %v, want true", done, err)
	}
	if done, _ := store.IsDone(context.Background(), "00000001", annualReportCode, 2025); done {
		t.Error("IsDone(2025) = true; the current year must not be crawled")
	}
}

func TestRunIsResumableWithZeroRequests(t *testing.T) {
	store := openTestStore(t)
	dart := &countingClient{id: "dart"}
	kis := &countingClient{id: "kis"}
	mk := func() *Ingester {
		return New(Config{Store: store, DART: dart, KIS: kis, Mappings: testMappings(), Now: fixedNow})
	}

	if _, err := mk().Run(context.Background(), Options{Companies: 3, Years: 2}); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	firstRequests := dart.requests.Load() + kis.requests.Load()

	res, err := mk().Run(context.Background(), Options{Companies: 3, Years: 2})
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if got := dart.requests.Load() + kis.requests.Load(); got != firstRequests {
		t.Errorf("second run performed %d provider requests, want 0", got-firstRequests)
	}
	if res.Fetched != 0 || res.Skipped == 0 {
		t.Errorf("second run result = %+v, want all skipped", res)
	}
}

func TestRunInterruptFinishesCurrentCompany(t *testing.T) {
	store := openTestStore(t)
	var ing *Ingester
	dart := &countingClient{id: "dart"}
	// interrupt during the very first provider call
	dart.hook = func() { ing.Interrupt() }
	ing = New(Config{Store: store, DART: dart, Mappings: testMappings(), Now: fixedNow})

	res, err := ing.Run(context.Background(), Options{Companies: 5, Years: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Interrupted {
		t.Error("Interrupted = false, want true")
	}
	if res.CompaniesDone != 1 {
		t.Errorf("CompaniesDone = %d, want exactly the in-flight company", res.CompaniesDone)
	}
	// the in-flight company's unit is checkpointed
	if done, _ := store.IsDone(context.Background(), "00000001", annualReportCode, 2024); !done {
		t.Error("interrupted run must still checkpoint the finished company")
	}
}

func TestRunInterruptedThenResumedMatchesUninterrupted(t *testing.T) {
	mappings := testMappings()

	// uninterrupted baseline
	baseline := openTestStore(t)
	baseDart := &countingClient{id: "dart"}
	if _, err := New(Config{Store: baseline, DART: baseDart, Mappings: mappings, Now: fixedNow}).
		Run(context.Background(), Options{Companies: 5, Years: 1}); err != nil {
		t.Fatalf("baseline Run() error = %v", err)
	}
	baseCount, _ := baseline.ResponseCount(context.Background())

	// interrupted after the 3rd company, then resumed
	store := openTestStore(t)
	var ing *Ingester
	companies := 0
	dart := &countingClient{id: "dart"}
	dart.hook = func() {
		companies++
		if companies == 3 {
			ing.Interrupt()
		}
	}
	ing = New(Config{Store: store, DART: dart, Mappings: mappings, Now: fixedNow})
	res, err := ing.Run(context.Background(), Options{Companies: 5, Years: 1})
	if err != nil {
		t.Fatalf("interrupted Run() error = %v", err)
	}
	if !res.Interrupted || res.CompaniesDone >= 5 {
		t.Fatalf("result = %+v, want early interrupt", res)
	}

	dart.hook = nil
	resumed := New(Config{Store: store, DART: dart, Mappings: mappings, Now: fixedNow})
	if _, err := resumed.Run(context.Background(), Options{Companies: 5, Years: 1}); err != nil {
		t.Fatalf("resumed Run() error = %v", err)
	}

	finalCount, _ := store.ResponseCount(context.Background())
	if finalCount != baseCount {
		t.Errorf("responses after resume = %d, want %d (baseline)", finalCount, baseCount)
	}
}

func TestRunCancelledContextStopsLoop(t *testing.T) {
	store := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	dart := &countingClient{id: "dart", hook: cancel}
	ing := New(Config{Store: store, DART: dart, Mappings: testMappings(), Now: fixedNow})

	res, err := ing.Run(ctx, Options{Companies: 5, Years: 1})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Interrupted {
		t.Error("cancelled context must mark the run interrupted")
	}
}

func TestStoreUpsertIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveResponse(ctx, "k", []byte("v1"), "dart"); err != nil {
		t.Fatalf("SaveResponse() error = %v", err)
	}
	if err := store.SaveResponse(ctx, "k", []byte("v2"), "dart"); err != nil {
		t.Fatalf("SaveResponse() overwrite error = %v", err)
	}
	n, err := store.ResponseCount(ctx)
	if err != nil {
		t.Fatalf("ResponseCount() error = %v", err)
	}
	if n != 1 {
		t.Errorf("responses = %d, want 1 after upsert", n)
	}
}

func TestResetProgress(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SaveResponse(ctx, "k", []byte("v"), "dart"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkDone(ctx, "00000001", annualReportCode, 2024); err != nil {
		t.Fatal(err)
	}
	if err := store.ResetProgress(ctx); err != nil {
		t.Fatalf("ResetProgress() error = %v", err)
	}

	if n, _ := store.ResponseCount(ctx); n != 0 {
		t.Errorf("responses after reset = %d, want 0", n)
	}
	if n, _ := store.ProgressCount(ctx); n != 0 {
		t.Errorf("progress after reset = %d, want 0", n)
	}
}

func TestStoreMeta(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if v, err := store.GetMeta(ctx, "absent"); err != nil || v != "" {
		t.Errorf("GetMeta(absent) = %q, %v, want empty", v, err)
	}
	if err := store.SetMeta(ctx, "last_run", "2025-06-16T12:00:00+09:00"); err != nil {
		t.Fatalf("SetMeta() error = %v", err)
	}
	v, err := store.GetMeta(ctx, "last_run")
	if err != nil || v != "2025-06-16T12:00:00+09:00" {
		t.Errorf("GetMeta() = %q, %v", v, err)
	}
}
