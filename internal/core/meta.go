package core

import "time"

// Provenance records which layer satisfied a request.
type Provenance string

const (
	ProvenanceMemory Provenance = "memory"
	ProvenanceDisk   Provenance = "disk"
	ProvenanceOrigin Provenance = "origin"
)

// Meta accompanies every successful request result.
type Meta struct {
	Provider       string        `json:"provider"`
	Endpoint       string        `json:"endpoint"`
	Provenance     Provenance    `json:"provenance"`
	ResponseTime   time.Duration `json:"response_time"`
	DailyRemaining int           `json:"daily_remaining"`
	MarketOpen     bool          `json:"market_open"`

	// Financial-statement fetches only: the division actually returned and
	// whether the consolidated→separate fallback fired.
	FSDiv        string `json:"fs_div,omitempty"`
	UsedFallback bool   `json:"used_fallback,omitempty"`
}
