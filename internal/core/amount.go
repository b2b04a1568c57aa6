package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Scale tags for Korean display units.
const (
	ScaleWon = "won" // 1
	ScaleMan = "man" // 10^4
	ScaleEok = "eok" // 10^8
	ScaleJo  = "jo"  // 10^12
)

// Amount is a monetary or numeric value normalized to WON minor units.
// A nil Value means the upstream reported no figure; Display is then "N/A".
type Amount struct {
	Value    *float64  `json:"value"`
	Display  string    `json:"display"`
	Unit     string    `json:"unit"`
	Scale    string    `json:"scale"`
	Estimate bool      `json:"estimate,omitempty"`
	Source   string    `json:"source,omitempty"`
	AsOf     time.Time `json:"as_of,omitempty"`
}

// NewAmount builds an Amount from a raw provider string, formatting the
// display with magnitude-chosen scale.
func NewAmount(raw, source string, asOf time.Time) Amount {
	v, ok := ParseAmount(raw)
	a := Amount{Unit: "KRW", Source: source, AsOf: asOf}
	if !ok {
		a.Display = "N/A"
		a.Scale = ScaleWon
		return a
	}
	a.Value = &v
	a.Display = FormatAmount(v)
	a.Scale = scaleFor(v)
	return a
}

// ParseAmount parses a provider amount string. Comma separators are
// stripped; "-" and the empty string are the upstream "no value" sentinels.
func ParseAmount(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func scaleFor(v float64) string {
	abs := math.Abs(v)
	switch {
	case abs >= 1e12:
		return ScaleJo
	case abs >= 1e8:
		return ScaleEok
	case abs >= 1e4:
		return ScaleMan
	default:
		return ScaleWon
	}
}

// FormatOptions overrides the magnitude-chosen display.
type FormatOptions struct {
	Scale     string // force a scale tag; empty picks by magnitude
	Precision int    // decimal places; -1 uses the scale default
	PlusSign  bool   // prefix positive values with '+'
}

// FormatAmount renders v in WON with a magnitude-chosen suffix
// (조원 ≥10^12, 억원 ≥10^8, 만원 ≥10^4, 원 otherwise).
func FormatAmount(v float64) string {
	return FormatAmountWith(v, FormatOptions{Precision: -1})
}

func FormatAmountWith(v float64, opts FormatOptions) string {
	scale := opts.Scale
	if scale == "" {
		scale = scaleFor(v)
	}

	var divisor float64
	var suffix string
	var defPrec int
	switch scale {
	case ScaleJo:
		divisor, suffix, defPrec = 1e12, "조원", 1
	case ScaleEok:
		divisor, suffix, defPrec = 1e8, "억원", 1
	case ScaleMan:
		divisor, suffix, defPrec = 1e4, "만원", 0
	default:
		divisor, suffix, defPrec = 1, "원", 0
	}

	prec := opts.Precision
	if prec < 0 {
		prec = defPrec
	}

	scaled := v / divisor
	sign := ""
	if scaled < 0 {
		sign = "-"
		scaled = -scaled
	} else if opts.PlusSign && scaled > 0 {
		sign = "+"
	}

	return sign + groupDigits(strconv.FormatFloat(scaled, 'f', prec, 64)) + suffix
}

// groupDigits inserts comma thousands-separators into the integer part of
// a non-negative decimal string.
func groupDigits(s string) string {
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	n := len(intPart)
	if n <= 3 {
		if hasFrac {
			return intPart + "." + fracPart
		}
		return intPart
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}

var koreanAmountRe = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)\s*(조원|억원|만원|원|조|억|만|배|%)?`)

// ParseKoreanAmount inverts FormatAmount: "1.5조원" → 1.5e12. A bare number
// or a non-scaling unit (배, %) returns the value as written. Used by
// offline verification paths, not live requests.
func ParseKoreanAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	m := koreanAmountRe.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("core: no numeric amount in %q", s)
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("core: parsing amount %q: %w", m[1], err)
	}
	switch m[2] {
	case "조원", "조":
		v *= 1e12
	case "억원", "억":
		v *= 1e8
	case "만원", "만":
		v *= 1e4
	}
	if neg {
		v = -v
	}
	return v, nil
}
