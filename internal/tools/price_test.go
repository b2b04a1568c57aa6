package tools

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"unicode/utf8"

	"github.com/kofinhq/kofin/internal/core"
)

func TestGetPriceSnapshot(t *testing.T) {
	kis := &fakeClient{id: "kis", fn: func(endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
		if params["FID_INPUT_ISCD"] != "005930" {
			t.Errorf("FID_INPUT_ISCD = %q, want 005930", params["FID_INPUT_ISCD"])
		}
		if opts.TrID != priceTrID {
			t.Errorf("TrID = %q, want %q", opts.TrID, priceTrID)
		}
		return json.RawMessage(`{
			"rt_cd": "0",
			"output": {
				"stck_prpr": "71500", "prdy_vrss": "-500", "prdy_ctrt": "-0.69",
				"stck_oprc": "72000", "stck_hgpr": "72300", "stck_lwpr": "71200",
				"acml_vol": "11234567", "per": "13.5", "pbr": "1.4", "hts_avls": "4268000"
			}
		}`), core.Meta{Provider: "kis"}, nil
	}}
	s := New(Config{KIS: kis})

	snap, _, err := s.GetPriceSnapshot(context.Background(), "005930")
	if err != nil {
		t.Fatalf("GetPriceSnapshot() error = %v", err)
	}
	if snap.Price.Value == nil || *snap.Price.Value != 71500 {
		t.Errorf("Price = %v, want 71500", snap.Price.Value)
	}
	if snap.Change != -500 || snap.ChangePct != -0.69 {
		t.Errorf("change = %v/%v, want -500/-0.69", snap.Change, snap.ChangePct)
	}
	if snap.Volume != 11234567 {
		t.Errorf("Volume = %v, want 11234567", snap.Volume)
	}
	if snap.MarketCapEok != 4268000 {
		t.Errorf("MarketCapEok = %v, want 4268000", snap.MarketCapEok)
	}
}

func TestGetPriceHistorySummary(t *testing.T) {
	// newest-first, the way the quotes API returns them
	kis := &fakeClient{id: "kis", fn: func(endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
		return json.RawMessage(`{
			"rt_cd": "0",
			"output": [
				{"stck_bsop_date": "20250620", "stck_clpr": "73000", "stck_hgpr": "73400", "stck_lwpr": "72500", "acml_vol": "1000"},
				{"stck_bsop_date": "20250619", "stck_clpr": "72000", "stck_hgpr": "74000", "stck_lwpr": "71800", "acml_vol": "3000"},
				{"stck_bsop_date": "20250618", "stck_clpr": "70000", "stck_hgpr": "70500", "stck_lwpr": "69000", "acml_vol": "2000"}
			]
		}`), core.Meta{Provider: "kis"}, nil
	}}
	s := New(Config{KIS: kis})

	sum, _, err := s.GetPriceHistory(context.Background(), "005930")
	if err != nil {
		t.Fatalf("GetPriceHistory() error = %v", err)
	}
	if sum.Days != 3 {
		t.Errorf("Days = %d, want 3", sum.Days)
	}
	if *sum.FirstClose.Value != 70000 || *sum.LastClose.Value != 73000 {
		t.Errorf("closes = %v..%v, want 70000..73000", *sum.FirstClose.Value, *sum.LastClose.Value)
	}
	wantReturn := (73000.0 - 70000.0) / 70000.0 * 100
	if math.Abs(sum.ReturnPct-wantReturn) > 1e-9 {
		t.Errorf("ReturnPct = %v, want %v", sum.ReturnPct, wantReturn)
	}
	if *sum.High.Value != 74000 || sum.HighDate.LabelEN != "2025-06-19" {
		t.Errorf("high = %v on %s, want 74000 on 2025-06-19", *sum.High.Value, sum.HighDate.LabelEN)
	}
	if *sum.Low.Value != 69000 || sum.LowDate.LabelEN != "2025-06-18" {
		t.Errorf("low = %v on %s, want 69000 on 2025-06-18", *sum.Low.Value, sum.LowDate.LabelEN)
	}
	if sum.AvgVolume != 2000 {
		t.Errorf("AvgVolume = %v, want 2000", sum.AvgVolume)
	}
	if utf8.RuneCountInString(sum.Sparkline) != 3 {
		t.Errorf("Sparkline = %q, want 3 cells", sum.Sparkline)
	}
}

func TestGetPriceHistoryEmpty(t *testing.T) {
	kis := &fakeClient{id: "kis", fn: func(endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
		return json.RawMessage(`{"rt_cd": "0", "output": []}`), core.Meta{}, nil
	}}
	s := New(Config{KIS: kis})

	_, _, err := s.GetPriceHistory(context.Background(), "005930")
	te, ok := core.AsToolError(err)
	if !ok || te.Kind != core.ErrNotFound {
		t.Fatalf("error = %v, want not_found", err)
	}
}

func TestGetMarketIndex(t *testing.T) {
	kis := &fakeClient{id: "kis", fn: func(endpoint string, params map[string]string, opts *core.RequestOptions) (json.RawMessage, core.Meta, error) {
		if opts.TrID != indexTrID {
			t.Errorf("TrID = %q, want %q", opts.TrID, indexTrID)
		}
		return json.RawMessage(`{
			"rt_cd": "0",
			"output": {"bstp_nmix_prpr": "2785.37", "bstp_nmix_prdy_vrss": "12.10", "bstp_nmix_prdy_ctrt": "0.44", "acml_vol": "450123"}
		}`), core.Meta{Provider: "kis"}, nil
	}}
	s := New(Config{KIS: kis})

	idx, _, err := s.GetMarketIndex(context.Background(), "0001")
	if err != nil {
		t.Fatalf("GetMarketIndex() error = %v", err)
	}
	if *idx.Value.Value != 2785.37 {
		t.Errorf("Value = %v, want 2785.37", *idx.Value.Value)
	}
	if idx.ChangePct != 0.44 {
		t.Errorf("ChangePct = %v, want 0.44", idx.ChangePct)
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline(nil, 10); got != "" {
		t.Errorf("Sparkline(nil) = %q, want empty", got)
	}
	if got := Sparkline([]float64{5, 5, 5}, 10); got != "▁▁▁" {
		t.Errorf("flat series = %q, want ▁▁▁", got)
	}

	got := Sparkline([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 8)
	if got != "▁▂▃▄▅▆▇█" {
		t.Errorf("ramp = %q, want ▁▂▃▄▅▆▇█", got)
	}

	// longer than width downsamples to exactly w cells
	long := make([]float64, 100)
	for i := range long {
		long[i] = float64(i)
	}
	if n := utf8.RuneCountInString(Sparkline(long, 20)); n != 20 {
		t.Errorf("downsampled width = %d, want 20", n)
	}
}
