package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/core"
)

const (
	// fs_div values on the filings statement endpoint
	DivisionConsolidated = "CFS"
	DivisionSeparate     = "OFS"

	statementEndpoint = "fnlttSinglAcntAll"
)

// Account is one reported line item with normalized current and prior
// period amounts.
type Account struct {
	Name      string      `json:"name"`
	Concept   string      `json:"concept,omitempty"`
	Statement string      `json:"statement"` // BS, IS, CIS, CF, SCE
	Current   core.Amount `json:"current"`
	Prior     core.Amount `json:"prior"`
}

type FinancialStatements struct {
	CorpCode   string      `json:"corp_code"`
	Year       int         `json:"year"`
	ReportCode string      `json:"report_code"`
	FSDiv      string      `json:"fs_div"`
	Period     core.Period `json:"period"`
	Accounts   []Account   `json:"accounts"`
}

type statementRow struct {
	AccountName  string `json:"account_nm"`
	StatementDiv string `json:"sj_div"`
	CurrentRaw   string `json:"thstrm_amount"`
	PriorRaw     string `json:"frmtrm_amount"`
	Currency     string `json:"currency"`
}

type statementBody struct {
	List []statementRow `json:"list"`
}

// GetFinancialStatements fetches one report. An empty fsDiv applies the
// consolidated-first policy: try CFS and, on NotFound only, retry once as
// OFS with the fallback tagged in Meta. An explicit fsDiv is never
// substituted.
func (s *Service) GetFinancialStatements(ctx context.Context, corpCode string, year int, reportCode, fsDiv string) (*FinancialStatements, core.Meta, error) {
	if err := s.requireClient(s.dart, "dart", "DART_API_KEY"); err != nil {
		return nil, core.Meta{}, err
	}

	period, err := core.PeriodFromReportCode(year, reportCode)
	if err != nil {
		return nil, core.Meta{}, core.ParseError("dart", err.Error(), err)
	}

	explicit := fsDiv != ""
	division := fsDiv
	if !explicit {
		division = DivisionConsolidated
	}

	raw, meta, err := s.fetchStatements(ctx, corpCode, year, reportCode, division)
	if err != nil {
		te, ok := core.AsToolError(err)
		if !ok || te.Kind != core.ErrNotFound || explicit {
			return nil, core.Meta{}, err
		}
		division = DivisionSeparate
		raw, meta, err = s.fetchStatements(ctx, corpCode, year, reportCode, division)
		if err != nil {
			return nil, core.Meta{}, err
		}
		meta.UsedFallback = true
		s.log.Debug("consolidated statements absent, fell back to separate",
			zap.String("corp_code", corpCode), zap.Int("year", year))
	}
	meta.FSDiv = division

	var body statementBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.Meta{}, core.ParseError("dart", "unreadable statement body", err)
	}

	accounts := lo.Map(body.List, func(row statementRow, _ int) Account {
		return Account{
			Name:      row.AccountName,
			Concept:   s.concepts.Concept(row.AccountName),
			Statement: row.StatementDiv,
			Current:   core.NewAmount(row.CurrentRaw, "dart", period.End),
			Prior:     core.NewAmount(row.PriorRaw, "dart", period.End),
		}
	})

	return &FinancialStatements{
		CorpCode:   corpCode,
		Year:       year,
		ReportCode: reportCode,
		FSDiv:      division,
		Period:     period,
		Accounts:   accounts,
	}, meta, nil
}

func (s *Service) fetchStatements(ctx context.Context, corpCode string, year int, reportCode, division string) (json.RawMessage, core.Meta, error) {
	// filed statements are immutable: cache permanently (nil TTL)
	return s.dart.Request(ctx, statementEndpoint, map[string]string{
		"corp_code":  corpCode,
		"bsns_year":  fmt.Sprintf("%d", year),
		"reprt_code": reportCode,
		"fs_div":     division,
	}, &core.RequestOptions{})
}
