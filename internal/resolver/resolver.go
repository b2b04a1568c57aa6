// Package resolver turns free-form company queries (ticker, registration
// code, exact or misspelled Korean name) into canonical corp mappings.
package resolver

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	fuzzyThreshold  = 0.7
	minFuzzyRunes   = 2
	maxAlternatives = 4
)

// Mapping is one corp-code master entry: 8-char registration code, the
// canonical name and, for listed companies, the 6-digit ticker.
type Mapping struct {
	CorpCode   string `json:"corp_code"`
	Name       string `json:"corp_name"`
	Ticker     string `json:"stock_code,omitempty"`
	ModifyDate string `json:"modify_date,omitempty"`
}

// Listed reports whether the company trades on an exchange.
func (m Mapping) Listed() bool { return m.Ticker != "" }

type MatchType string

const (
	MatchExactTicker MatchType = "exact-ticker"
	MatchExactCode   MatchType = "exact-code"
	MatchExactName   MatchType = "exact-name"
	MatchFuzzyName   MatchType = "fuzzy-name"
)

// Resolution is the best match with runner-up alternatives.
type Resolution struct {
	Mapping      Mapping   `json:"mapping"`
	Confidence   float64   `json:"confidence"`
	MatchType    MatchType `json:"match_type"`
	Alternatives []Mapping `json:"alternatives,omitempty"`
}

// Resolver holds the mappings and their three lookup indices.
type Resolver struct {
	mappings []Mapping
	byTicker map[string]int
	byCode   map[string]int
	byName   map[string]int
	log      *zap.Logger
}

func New(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log.Named("resolver")}
}

func (r *Resolver) Len() int { return len(r.mappings) }

// Mappings exposes the loaded set in master-list order.
func (r *Resolver) Mappings() []Mapping { return r.mappings }

// Load replaces the mapping set and rebuilds the indices. Later duplicates
// win, matching the master-list ordering.
func (r *Resolver) Load(mappings []Mapping) {
	r.mappings = mappings
	r.byTicker = make(map[string]int)
	r.byCode = make(map[string]int, len(mappings))
	r.byName = make(map[string]int, len(mappings))
	for i, m := range mappings {
		if m.Ticker != "" {
			r.byTicker[m.Ticker] = i
		}
		r.byCode[m.CorpCode] = i
		r.byName[normalizeName(m.Name)] = i
	}
	r.log.Debug("mappings loaded", zap.Int("count", len(mappings)))
}

// Resolve tries the strategies in fixed order: exact ticker, exact
// registration code, exact name, then jamo-level fuzzy search. Returns nil
// when nothing clears the threshold.
func (r *Resolver) Resolve(query string) *Resolution {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil
	}

	if isDigits(q, 6) {
		if i, ok := r.byTicker[q]; ok {
			return &Resolution{Mapping: r.mappings[i], Confidence: 1.0, MatchType: MatchExactTicker}
		}
	}
	if isDigits(q, 8) {
		if i, ok := r.byCode[q]; ok {
			return &Resolution{Mapping: r.mappings[i], Confidence: 1.0, MatchType: MatchExactCode}
		}
	}
	if i, ok := r.byName[normalizeName(q)]; ok {
		return &Resolution{Mapping: r.mappings[i], Confidence: 1.0, MatchType: MatchExactName}
	}

	return r.fuzzy(q)
}

type scored struct {
	mapping    Mapping
	similarity float64
}

func (r *Resolver) fuzzy(query string) *Resolution {
	if len([]rune(query)) < minFuzzyRunes {
		return nil
	}

	queryJamo := decomposeJamo(normalizeName(query))
	var candidates []scored
	for _, m := range r.mappings {
		nameJamo := decomposeJamo(normalizeName(m.Name))
		longest := max(len(queryJamo), len(nameJamo))
		if longest == 0 {
			continue
		}
		sim := 1 - float64(jamoDistance(queryJamo, nameJamo))/float64(longest)
		if sim >= fuzzyThreshold {
			candidates = append(candidates, scored{mapping: m, similarity: sim})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// highest similarity first; listed companies break ties
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		return candidates[i].mapping.Listed() && !candidates[j].mapping.Listed()
	})

	best := candidates[0]
	alternatives := lo.Map(
		candidates[1:min(len(candidates), 1+maxAlternatives)],
		func(s scored, _ int) Mapping { return s.mapping },
	)
	return &Resolution{
		Mapping:      best.mapping,
		Confidence:   best.similarity,
		MatchType:    MatchFuzzyName,
		Alternatives: alternatives,
	}
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func isDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// corpIndexDownloader is satisfied by the filings client.
type corpIndexDownloader interface {
	DownloadCorpIndex(ctx context.Context) ([]byte, error)
}

// LoadFromAPI downloads the zipped corp-code master list, rebuilds the
// indices and persists the mappings to cachePath as JSON.
func (r *Resolver) LoadFromAPI(ctx context.Context, dl corpIndexDownloader, cachePath string) error {
	payload, err := dl.DownloadCorpIndex(ctx)
	if err != nil {
		return err
	}
	mappings, err := ParseCorpIndex(payload)
	if err != nil {
		return err
	}
	r.Load(mappings)
	if cachePath != "" {
		if err := r.SaveCache(cachePath); err != nil {
			return err
		}
	}
	return nil
}

// LoadFromCache reads a previously persisted mapping file.
func (r *Resolver) LoadFromCache(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("resolver: reading corp-code cache: %w", err)
	}
	var mappings []Mapping
	if err := json.Unmarshal(raw, &mappings); err != nil {
		return fmt.Errorf("resolver: parsing corp-code cache: %w", err)
	}
	r.Load(mappings)
	return nil
}

// SaveCache persists the current mappings as plain JSON.
func (r *Resolver) SaveCache(path string) error {
	raw, err := json.Marshal(r.mappings)
	if err != nil {
		return fmt.Errorf("resolver: encoding corp-code cache: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("resolver: writing corp-code cache: %w", err)
	}
	return nil
}

type corpIndexXML struct {
	List []struct {
		CorpCode   string `xml:"corp_code"`
		CorpName   string `xml:"corp_name"`
		StockCode  string `xml:"stock_code"`
		ModifyDate string `xml:"modify_date"`
	} `xml:"list"`
}

// ParseCorpIndex unpacks the zipped XML master list into mappings. Stock
// codes are blank-padded for unlisted companies; those become empty.
func ParseCorpIndex(zipPayload []byte) ([]Mapping, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipPayload), int64(len(zipPayload)))
	if err != nil {
		return nil, fmt.Errorf("resolver: opening corp index archive: %w", err)
	}

	var xmlFile *zip.File
	for _, f := range zr.File {
		if strings.EqualFold(f.Name, "CORPCODE.xml") {
			xmlFile = f
			break
		}
	}
	if xmlFile == nil && len(zr.File) == 1 {
		xmlFile = zr.File[0]
	}
	if xmlFile == nil {
		return nil, fmt.Errorf("resolver: corp index archive has no CORPCODE.xml")
	}

	rc, err := xmlFile.Open()
	if err != nil {
		return nil, fmt.Errorf("resolver: opening corp index entry: %w", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("resolver: reading corp index entry: %w", err)
	}

	var idx corpIndexXML
	if err := xml.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("resolver: parsing corp index XML: %w", err)
	}

	mappings := make([]Mapping, 0, len(idx.List))
	for _, e := range idx.List {
		code := strings.TrimSpace(e.CorpCode)
		if code == "" {
			continue
		}
		mappings = append(mappings, Mapping{
			CorpCode:   code,
			Name:       strings.TrimSpace(e.CorpName),
			Ticker:     strings.TrimSpace(e.StockCode),
			ModifyDate: strings.TrimSpace(e.ModifyDate),
		})
	}
	return mappings, nil
}
