// Package tools layers typed domain operations over the provider clients:
// financial statements with the consolidated-first policy, quotes, price
// history summaries, central-bank and national statistics.
package tools

import (
	"time"

	"go.uber.org/zap"

	"github.com/kofinhq/kofin/internal/core"
)

// Default freshness per data kind. A nil TTL caches permanently.
const (
	ttlCompanyOverview = 30 * 24 * time.Hour
	ttlDisclosureList  = time.Hour
	ttlLiveMarketOpen  = 30 * time.Second
	ttlLiveMarketShut  = time.Hour
	ttlIndicatorClosed = 7 * 24 * time.Hour
	ttlIndicatorOpen   = time.Hour
	ttlCatalogSearch   = 30 * 24 * time.Hour
)

// ConceptMapper tags a reported account name with a canonical concept.
// The mapping itself lives outside this module; NopConcepts is the
// fallback when none is supplied.
type ConceptMapper interface {
	Concept(accountName string) string
}

type nopConcepts struct{}

func (nopConcepts) Concept(string) string { return "" }

// NopConcepts maps every account to the empty concept.
var NopConcepts ConceptMapper = nopConcepts{}

type Config struct {
	DART     core.Client
	KIS      core.Client
	ECOS     core.Client
	KOSIS    core.Client
	Concepts ConceptMapper
	Logger   *zap.Logger
	Now      func() time.Time
}

// Service bundles the tool functions. Clients may be nil; calling a tool
// whose provider is missing returns an ApiError naming the credential.
type Service struct {
	dart     core.Client
	kis      core.Client
	ecos     core.Client
	kosis    core.Client
	concepts ConceptMapper
	log      *zap.Logger
	now      func() time.Time
}

func New(cfg Config) *Service {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	concepts := cfg.Concepts
	if concepts == nil {
		concepts = NopConcepts
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		dart:     cfg.DART,
		kis:      cfg.KIS,
		ecos:     cfg.ECOS,
		kosis:    cfg.KOSIS,
		concepts: concepts,
		log:      log.Named("tools"),
		now:      now,
	}
}

func (s *Service) requireClient(c core.Client, provider, envHint string) error {
	if c == nil {
		return core.APIError(provider, "provider not configured; set "+envHint, false)
	}
	return nil
}

// liveTTL picks the live-quote freshness from market hours.
func (s *Service) liveTTL() *time.Duration {
	ttl := ttlLiveMarketShut
	if core.MarketOpen(s.now()) {
		ttl = ttlLiveMarketOpen
	}
	return &ttl
}

func ttlOf(d time.Duration) *time.Duration { return &d }
