package tools

import (
	"context"
	"encoding/json"

	"github.com/kofinhq/kofin/internal/core"
)

type CompanyInfo struct {
	CorpCode     string `json:"corp_code"`
	Name         string `json:"corp_name"`
	NameEN       string `json:"corp_name_eng,omitempty"`
	Ticker       string `json:"stock_code,omitempty"`
	CEO          string `json:"ceo_nm,omitempty"`
	Established  string `json:"est_dt,omitempty"`
	Address      string `json:"adres,omitempty"`
	Homepage     string `json:"hm_url,omitempty"`
	IndustryCode string `json:"induty_code,omitempty"`
}

// GetCompanyInfo fetches the filings-provider company overview.
func (s *Service) GetCompanyInfo(ctx context.Context, corpCode string) (*CompanyInfo, core.Meta, error) {
	if err := s.requireClient(s.dart, "dart", "DART_API_KEY"); err != nil {
		return nil, core.Meta{}, err
	}

	raw, meta, err := s.dart.Request(ctx, "company",
		map[string]string{"corp_code": corpCode},
		&core.RequestOptions{TTL: ttlOf(ttlCompanyOverview)})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var info CompanyInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, core.Meta{}, core.ParseError("dart", "unreadable company body", err)
	}
	info.CorpCode = corpCode
	return &info, meta, nil
}

type Disclosure struct {
	ReportName string `json:"report_nm"`
	ReceiptNo  string `json:"rcept_no"`
	FiledAt    string `json:"rcept_dt"`
	Submitter  string `json:"flr_nm"`
	Remarks    string `json:"rm,omitempty"`
}

type disclosureBody struct {
	List []Disclosure `json:"list"`
}

// GetDisclosures lists recent filings for a company over [from, to]
// (YYYYMMDD, inclusive).
func (s *Service) GetDisclosures(ctx context.Context, corpCode, from, to string) ([]Disclosure, core.Meta, error) {
	if err := s.requireClient(s.dart, "dart", "DART_API_KEY"); err != nil {
		return nil, core.Meta{}, err
	}

	raw, meta, err := s.dart.Request(ctx, "list", map[string]string{
		"corp_code": corpCode,
		"bgn_de":    from,
		"end_de":    to,
		"page_no":   "1",
		"page_count": "100",
	}, &core.RequestOptions{TTL: ttlOf(ttlDisclosureList)})
	if err != nil {
		return nil, core.Meta{}, err
	}

	var body disclosureBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, core.Meta{}, core.ParseError("dart", "unreadable disclosure list", err)
	}
	return body.List, meta, nil
}
