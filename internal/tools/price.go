package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/kofinhq/kofin/internal/core"
)

// KIS routing ids and endpoints for domestic equities.
const (
	priceEndpoint   = "uapi/domestic-stock/v1/quotations/inquire-price"
	priceTrID       = "FHKST01010100"
	historyEndpoint = "uapi/domestic-stock/v1/quotations/inquire-daily-price"
	historyTrID     = "FHKST01010400"
	indexEndpoint   = "uapi/domestic-stock/v1/quotations/inquire-index-price"
	indexTrID       = "FHPUP02100000"
)

type PriceSnapshot struct {
	Ticker        string      `json:"ticker"`
	Price         core.Amount `json:"price"`
	Change        float64     `json:"change"`
	ChangePct     float64     `json:"change_pct"`
	Open          core.Amount `json:"open"`
	High          core.Amount `json:"high"`
	Low           core.Amount `json:"low"`
	Volume        float64     `json:"volume"`
	MarketOpen    bool        `json:"market_open"`
	PERatio       float64     `json:"per,omitempty"`
	PBRatio       float64     `json:"pbr,omitempty"`
	MarketCapEok  float64     `json:"market_cap_eok,omitempty"`
}

type priceOutput struct {
	Output struct {
		Price     string `json:"stck_prpr"`
		Change    string `json:"prdy_vrss"`
		ChangePct string `json:"prdy_ctrt"`
		Open      string `json:"stck_oprc"`
		High      string `json:"stck_hgpr"`
		Low       string `json:"stck_lwpr"`
		Volume    string `json:"acml_vol"`
		PER       string `json:"per"`
		PBR       string `json:"pbr"`
		MarketCap string `json:"hts_avls"` // 억원
	} `json:"output"`
}

// GetPriceSnapshot fetches the live quote for a 6-digit ticker. TTL is 30 s
// during market hours and 1 h outside them.
func (s *Service) GetPriceSnapshot(ctx context.Context, ticker string) (*PriceSnapshot, core.Meta, error) {
	if err := s.requireClient(s.kis, "kis", "KIS_APP_KEY/KIS_APP_SECRET"); err != nil {
		return nil, core.Meta{}, err
	}

	raw, meta, err := s.kis.Request(ctx, priceEndpoint, map[string]string{
		"FID_COND_MRKT_DIV_CODE": "J",
		"FID_INPUT_ISCD":         ticker,
	}, &core.RequestOptions{TTL: s.liveTTL(), TrID: priceTrID})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var body priceOutput
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.Meta{}, core.ParseError("kis", "unreadable price body", err)
	}

	now := s.now()
	out := body.Output
	snap := &PriceSnapshot{
		Ticker:     ticker,
		Price:      core.NewAmount(out.Price, "kis", now),
		Open:       core.NewAmount(out.Open, "kis", now),
		High:       core.NewAmount(out.High, "kis", now),
		Low:        core.NewAmount(out.Low, "kis", now),
		MarketOpen: core.MarketOpen(now),
	}
	snap.Change, _ = core.ParseAmount(out.Change)
	snap.ChangePct, _ = core.ParseAmount(out.ChangePct)
	snap.Volume, _ = core.ParseAmount(out.Volume)
	snap.PERatio, _ = core.ParseAmount(out.PER)
	snap.PBRatio, _ = core.ParseAmount(out.PBR)
	snap.MarketCapEok, _ = core.ParseAmount(out.MarketCap)
	return snap, meta, nil
}

type historyRow struct {
	Date   string `json:"stck_bsop_date"`
	Close  string `json:"stck_clpr"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Volume string `json:"acml_vol"`
}

type historyOutput struct {
	Output []historyRow `json:"output"`
}

// PriceHistorySummary condenses a run of daily closes.
type PriceHistorySummary struct {
	Ticker     string      `json:"ticker"`
	Days       int         `json:"days"`
	FirstDate  core.Period `json:"first_date"`
	LastDate   core.Period `json:"last_date"`
	FirstClose core.Amount `json:"first_close"`
	LastClose  core.Amount `json:"last_close"`
	ReturnPct  float64     `json:"return_pct"`
	High       core.Amount `json:"high"`
	HighDate   core.Period `json:"high_date"`
	Low        core.Amount `json:"low"`
	LowDate    core.Period `json:"low_date"`
	AvgVolume  float64     `json:"avg_volume"`
	Sparkline  string      `json:"sparkline"`
}

// GetPriceHistory fetches the recent daily closes and summarizes them:
// endpoints return newest-first, the summary runs oldest-first.
func (s *Service) GetPriceHistory(ctx context.Context, ticker string) (*PriceHistorySummary, core.Meta, error) {
	if err := s.requireClient(s.kis, "kis", "KIS_APP_KEY/KIS_APP_SECRET"); err != nil {
		return nil, core.Meta{}, err
	}

	raw, meta, err := s.kis.Request(ctx, historyEndpoint, map[string]string{
		"FID_COND_MRKT_DIV_CODE": "J",
		"FID_INPUT_ISCD":         ticker,
		"FID_PERIOD_DIV_CODE":    "D",
		"FID_ORG_ADJ_PRC":        "0",
	}, &core.RequestOptions{TTL: s.liveTTL(), TrID: historyTrID})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var body historyOutput
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.Meta{}, core.ParseError("kis", "unreadable price history body", err)
	}
	if len(body.Output) == 0 {
		return nil, core.Meta{}, core.NotFoundError("kis", "no price history for "+ticker)
	}

	rows := body.Output
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })

	summary, err := summarizeHistory(ticker, rows)
	if err != nil {
		return nil, core.Meta{}, err
	}
	return summary, meta, nil
}

func summarizeHistory(ticker string, rows []historyRow) (*PriceHistorySummary, error) {
	closes := make([]float64, 0, len(rows))
	var volumeSum float64
	highIdx, lowIdx := 0, 0
	var highV, lowV float64

	for i, row := range rows {
		c, ok := core.ParseAmount(row.Close)
		if !ok {
			return nil, core.ParseError("kis", fmt.Sprintf("unparseable close %q on %s", row.Close, row.Date), nil)
		}
		closes = append(closes, c)
		if v, ok := core.ParseAmount(row.Volume); ok {
			volumeSum += v
		}
		if h, ok := core.ParseAmount(row.High); ok && (i == 0 || h > highV) {
			highV, highIdx = h, i
		}
		if l, ok := core.ParseAmount(row.Low); ok && (i == 0 || l < lowV) {
			lowV, lowIdx = l, i
		}
	}

	firstPeriod, err := core.PeriodFromDateString(rows[0].Date)
	if err != nil {
		return nil, core.ParseError("kis", "bad history date", err)
	}
	lastPeriod, err := core.PeriodFromDateString(rows[len(rows)-1].Date)
	if err != nil {
		return nil, core.ParseError("kis", "bad history date", err)
	}
	highPeriod, _ := core.PeriodFromDateString(rows[highIdx].Date)
	lowPeriod, _ := core.PeriodFromDateString(rows[lowIdx].Date)

	first, last := closes[0], closes[len(closes)-1]
	var returnPct float64
	if first != 0 {
		returnPct = (last - first) / first * 100
	}

	return &PriceHistorySummary{
		Ticker:     ticker,
		Days:       len(rows),
		FirstDate:  firstPeriod,
		LastDate:   lastPeriod,
		FirstClose: core.NewAmount(rows[0].Close, "kis", firstPeriod.End),
		LastClose:  core.NewAmount(rows[len(rows)-1].Close, "kis", lastPeriod.End),
		ReturnPct:  returnPct,
		High:       core.NewAmount(rows[highIdx].High, "kis", highPeriod.End),
		HighDate:   highPeriod,
		Low:        core.NewAmount(rows[lowIdx].Low, "kis", lowPeriod.End),
		LowDate:    lowPeriod,
		AvgVolume:  volumeSum / float64(len(rows)),
		Sparkline:  Sparkline(closes, 20),
	}, nil
}

type MarketIndex struct {
	Code      string      `json:"code"`
	Value     core.Amount `json:"value"`
	Change    float64     `json:"change"`
	ChangePct float64     `json:"change_pct"`
	Volume    float64     `json:"volume"`
}

type indexOutput struct {
	Output struct {
		Value     string `json:"bstp_nmix_prpr"`
		Change    string `json:"bstp_nmix_prdy_vrss"`
		ChangePct string `json:"bstp_nmix_prdy_ctrt"`
		Volume    string `json:"acml_vol"`
	} `json:"output"`
}

// GetMarketIndex fetches an index snapshot ("0001" KOSPI, "1001" KOSDAQ).
func (s *Service) GetMarketIndex(ctx context.Context, indexCode string) (*MarketIndex, core.Meta, error) {
	if err := s.requireClient(s.kis, "kis", "KIS_APP_KEY/KIS_APP_SECRET"); err != nil {
		return nil, core.Meta{}, err
	}

	raw, meta, err := s.kis.Request(ctx, indexEndpoint, map[string]string{
		"FID_COND_MRKT_DIV_CODE": "U",
		"FID_INPUT_ISCD":         indexCode,
	}, &core.RequestOptions{TTL: s.liveTTL(), TrID: indexTrID})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var body indexOutput
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.Meta{}, core.ParseError("kis", "unreadable index body", err)
	}

	idx := &MarketIndex{
		Code:  indexCode,
		Value: core.NewAmount(body.Output.Value, "kis", s.now()),
	}
	idx.Change, _ = core.ParseAmount(body.Output.Change)
	idx.ChangePct, _ = core.ParseAmount(body.Output.ChangePct)
	idx.Volume, _ = core.ParseAmount(body.Output.Volume)
	return idx, meta, nil
}
