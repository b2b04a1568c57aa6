package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"

	"github.com/kofinhq/kofin/internal/core"
	"github.com/kofinhq/kofin/internal/providers/ecos"
)

// IndicatorPoint is one observation of a central-bank time series.
type IndicatorPoint struct {
	Period core.Period `json:"period"`
	Value  float64     `json:"value"`
	Item   string      `json:"item,omitempty"`
	Unit   string      `json:"unit,omitempty"`
}

type Indicator struct {
	Table  string           `json:"table"`
	Name   string           `json:"name,omitempty"`
	Points []IndicatorPoint `json:"points"`
}

type ecosSearchBody struct {
	StatisticSearch struct {
		Row []struct {
			StatName string `json:"STAT_NAME"`
			ItemName string `json:"ITEM_NAME1"`
			Unit     string `json:"UNIT_NAME"`
			Time     string `json:"TIME"`
			Value    string `json:"DATA_VALUE"`
		} `json:"row"`
	} `json:"StatisticSearch"`
}

// IndicatorQuery selects an ECOS time series. Period is A/Q/M/D; dates
// use the matching ECOS time-code format.
type IndicatorQuery struct {
	Table     string
	Period    string
	StartDate string
	EndDate   string
	Items     []string // item1..item4
	// Current marks the range as extending into the present; closed
	// periods cache for 7 days, current ones for an hour.
	Current bool
}

// GetIndicator fetches a central-bank statistics series.
func (s *Service) GetIndicator(ctx context.Context, q IndicatorQuery) (*Indicator, core.Meta, error) {
	if err := s.requireClient(s.ecos, "ecos", "ECOS_API_KEY"); err != nil {
		return nil, core.Meta{}, err
	}

	params := map[string]string{
		"table":      q.Table,
		"period":     q.Period,
		"start_date": q.StartDate,
		"end_date":   q.EndDate,
	}
	for i, item := range q.Items {
		if i >= 4 {
			break
		}
		params[fmt.Sprintf("item%d", i+1)] = item
	}

	ttl := ttlIndicatorClosed
	if q.Current {
		ttl = ttlIndicatorOpen
	}

	raw, meta, err := s.ecos.Request(ctx, ecos.EndpointStatisticSearch, params,
		&core.RequestOptions{TTL: &ttl})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var body ecosSearchBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.Meta{}, core.ParseError("ecos", "unreadable series body", err)
	}
	rows := body.StatisticSearch.Row
	if len(rows) == 0 {
		return nil, core.Meta{}, core.NotFoundError("ecos", "series returned no rows")
	}

	ind := &Indicator{Table: q.Table, Name: rows[0].StatName}
	for _, row := range rows {
		period, err := core.PeriodFromStatTime(row.Time)
		if err != nil {
			return nil, core.Meta{}, core.ParseError("ecos", "bad time code in series", err)
		}
		value, ok := core.ParseAmount(row.Value)
		if !ok {
			continue // missing observation
		}
		ind.Points = append(ind.Points, IndicatorPoint{
			Period: period,
			Value:  value,
			Item:   row.ItemName,
			Unit:   row.Unit,
		})
	}
	return ind, meta, nil
}

// KeyStatistic is one headline figure from the central-bank dashboard.
type KeyStatistic struct {
	Class string `json:"class"`
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
	Cycle string `json:"cycle"`
}

type keyStatRow struct {
	Class string `json:"CLASS_NAME"`
	Name  string `json:"KEYSTAT_NAME"`
	Value string `json:"DATA_VALUE"`
	Unit  string `json:"UNIT_NAME"`
	Cycle string `json:"CYCLE"`
}

type keyStatBody struct {
	KeyStatisticList struct {
		Row []keyStatRow `json:"row"`
	} `json:"KeyStatisticList"`
}

// GetKeyStatistics fetches the central-bank headline statistics list.
func (s *Service) GetKeyStatistics(ctx context.Context) ([]KeyStatistic, core.Meta, error) {
	if err := s.requireClient(s.ecos, "ecos", "ECOS_API_KEY"); err != nil {
		return nil, core.Meta{}, err
	}

	raw, meta, err := s.ecos.Request(ctx, ecos.EndpointKeyStatistics, nil,
		&core.RequestOptions{TTL: ttlOf(ttlIndicatorOpen)})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var body keyStatBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.Meta{}, core.ParseError("ecos", "unreadable key statistics body", err)
	}

	stats := lo.Map(body.KeyStatisticList.Row, func(r keyStatRow, _ int) KeyStatistic {
		return KeyStatistic{Class: r.Class, Name: r.Name, Value: r.Value, Unit: r.Unit, Cycle: r.Cycle}
	})
	return stats, meta, nil
}

// CatalogEntry is one hit from the statistics catalog search.
type CatalogEntry struct {
	StatCode string `json:"stat_code"`
	StatName string `json:"stat_name"`
	Content  string `json:"content,omitempty"`
}

type catalogBody struct {
	StatisticWord struct {
		Row []struct {
			StatName string `json:"STAT_NAME"`
			Content  string `json:"CONTENT"`
			StatCode string `json:"STAT_CODE"`
		} `json:"row"`
	} `json:"StatisticWord"`
}

// SearchCatalog looks a Korean term up in the statistics catalog.
func (s *Service) SearchCatalog(ctx context.Context, term string) ([]CatalogEntry, core.Meta, error) {
	if err := s.requireClient(s.ecos, "ecos", "ECOS_API_KEY"); err != nil {
		return nil, core.Meta{}, err
	}

	raw, meta, err := s.ecos.Request(ctx, ecos.EndpointStatisticWord,
		map[string]string{"term": term},
		&core.RequestOptions{TTL: ttlOf(ttlCatalogSearch)})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var body catalogBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.Meta{}, core.ParseError("ecos", "unreadable catalog body", err)
	}
	entries := make([]CatalogEntry, 0, len(body.StatisticWord.Row))
	for _, r := range body.StatisticWord.Row {
		entries = append(entries, CatalogEntry{StatCode: r.StatCode, StatName: r.StatName, Content: r.Content})
	}
	return entries, meta, nil
}

// NationalStatRow is one cell of a national-statistics table.
type NationalStatRow struct {
	Period   core.Period `json:"period"`
	Value    float64     `json:"value"`
	Item     string      `json:"item,omitempty"`
	Category string      `json:"category,omitempty"`
	Unit     string      `json:"unit,omitempty"`
}

type kosisRow struct {
	Time     string `json:"PRD_DE"`
	Value    string `json:"DT"`
	Item     string `json:"ITM_NM"`
	Category string `json:"C1_NM"`
	Unit     string `json:"UNIT_NM"`
}

// GetNationalStats fetches rows from a national-statistics table. orgID and
// tblID address the table; extra narrows the query.
func (s *Service) GetNationalStats(ctx context.Context, orgID, tblID string, extra map[string]string) ([]NationalStatRow, core.Meta, error) {
	if err := s.requireClient(s.kosis, "kosis", "KOSIS_API_KEY"); err != nil {
		return nil, core.Meta{}, err
	}

	params := map[string]string{
		"method": "getList",
		"orgId":  orgID,
		"tblId":  tblID,
	}
	for k, v := range extra {
		params[k] = v
	}

	raw, meta, err := s.kosis.Request(ctx, "Param/statisticsParameterData.do", params,
		&core.RequestOptions{TTL: ttlOf(ttlIndicatorClosed)})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var rows []kosisRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, core.Meta{}, core.ParseError("kosis", "unreadable table body", err)
	}

	out := make([]NationalStatRow, 0, len(rows))
	for _, r := range rows {
		period, err := core.PeriodFromStatTime(r.Time)
		if err != nil {
			// some tables carry half-year or custom codes; skip rather than fail
			continue
		}
		value, ok := core.ParseAmount(r.Value)
		if !ok {
			continue
		}
		out = append(out, NationalStatRow{
			Period:   period,
			Value:    value,
			Item:     r.Item,
			Category: r.Category,
			Unit:     r.Unit,
		})
	}
	if len(out) == 0 {
		return nil, core.Meta{}, core.NotFoundError("kosis", "no parseable rows in table")
	}
	return out, meta, nil
}
