package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Granularity string

const (
	Annual     Granularity = "annual"
	SemiAnnual Granularity = "semi_annual"
	Quarterly  Granularity = "quarterly"
	Monthly    Granularity = "monthly"
	Daily      Granularity = "daily"
)

// Period is a canonical calendar range at day precision. Quarterly periods
// are exactly three months aligned to Q1..Q4; monthly ends follow the
// civil calendar.
type Period struct {
	Granularity Granularity `json:"granularity"`
	Year        int         `json:"year"`
	Quarter     int         `json:"quarter,omitempty"`
	Month       int         `json:"month,omitempty"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	LabelKR     string      `json:"label_kr"`
	LabelEN     string      `json:"label_en"`
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, KST)
}

// endOfMonth returns the last civil day of (y, m).
func endOfMonth(y int, m time.Month) time.Time {
	return day(y, m+1, 1).AddDate(0, 0, -1)
}

func AnnualPeriod(year int) Period {
	return Period{
		Granularity: Annual,
		Year:        year,
		Start:       day(year, time.January, 1),
		End:         day(year, time.December, 31),
		LabelKR:     fmt.Sprintf("%d년", year),
		LabelEN:     fmt.Sprintf("FY%d", year),
	}
}

func QuarterPeriod(year, quarter int) (Period, error) {
	if quarter < 1 || quarter > 4 {
		return Period{}, fmt.Errorf("core: quarter out of range: %d", quarter)
	}
	startMonth := time.Month((quarter-1)*3 + 1)
	return Period{
		Granularity: Quarterly,
		Year:        year,
		Quarter:     quarter,
		Start:       day(year, startMonth, 1),
		End:         endOfMonth(year, startMonth+2),
		LabelKR:     fmt.Sprintf("%d년 %d분기", year, quarter),
		LabelEN:     fmt.Sprintf("%d Q%d", year, quarter),
	}, nil
}

func MonthPeriod(year, month int) (Period, error) {
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("core: month out of range: %d", month)
	}
	return Period{
		Granularity: Monthly,
		Year:        year,
		Month:       month,
		Start:       day(year, time.Month(month), 1),
		End:         endOfMonth(year, time.Month(month)),
		LabelKR:     fmt.Sprintf("%d년 %d월", year, month),
		LabelEN:     fmt.Sprintf("%d-%02d", year, month),
	}, nil
}

func DailyPeriod(t time.Time) Period {
	d := day(t.Year(), t.Month(), t.Day())
	return Period{
		Granularity: Daily,
		Year:        t.Year(),
		Month:       int(t.Month()),
		Start:       d,
		End:         d,
		LabelKR:     d.Format("2006년 1월 2일"),
		LabelEN:     d.Format("2006-01-02"),
	}
}

// PeriodFromReportCode maps a DART report code for a business year to its
// period. DART only files annual, H1 and Q1/Q3 reports; there is no Q2 or
// Q4 code in this source.
func PeriodFromReportCode(year int, code string) (Period, error) {
	switch code {
	case "11011":
		return AnnualPeriod(year), nil
	case "11012":
		return Period{
			Granularity: SemiAnnual,
			Year:        year,
			Start:       day(year, time.January, 1),
			End:         day(year, time.June, 30),
			LabelKR:     fmt.Sprintf("%d년 상반기", year),
			LabelEN:     fmt.Sprintf("%d H1", year),
		}, nil
	case "11013":
		return QuarterPeriod(year, 1)
	case "11014":
		return QuarterPeriod(year, 3)
	default:
		return Period{}, fmt.Errorf("core: unknown report code %q", code)
	}
}

// PeriodFromDateString maps an 8-digit YYYYMMDD to a daily period.
func PeriodFromDateString(s string) (Period, error) {
	t, err := time.ParseInLocation("20060102", strings.TrimSpace(s), KST)
	if err != nil {
		return Period{}, fmt.Errorf("core: parsing date %q: %w", s, err)
	}
	return DailyPeriod(t), nil
}

// PeriodFromStatTime maps a central-bank statistics time code:
// YYYY → annual, YYYYQn → quarterly, YYYYMM → monthly.
func PeriodFromStatTime(s string) (Period, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 4:
		y, err := strconv.Atoi(s)
		if err != nil {
			return Period{}, fmt.Errorf("core: parsing stat year %q: %w", s, err)
		}
		return AnnualPeriod(y), nil
	case len(s) == 6 && (s[4] == 'Q' || s[4] == 'q'):
		y, err := strconv.Atoi(s[:4])
		if err != nil {
			return Period{}, fmt.Errorf("core: parsing stat year %q: %w", s, err)
		}
		q, err := strconv.Atoi(s[5:])
		if err != nil {
			return Period{}, fmt.Errorf("core: parsing stat quarter %q: %w", s, err)
		}
		return QuarterPeriod(y, q)
	case len(s) == 6:
		y, err := strconv.Atoi(s[:4])
		if err != nil {
			return Period{}, fmt.Errorf("core: parsing stat year %q: %w", s, err)
		}
		m, err := strconv.Atoi(s[4:])
		if err != nil {
			return Period{}, fmt.Errorf("core: parsing stat month %q: %w", s, err)
		}
		return MonthPeriod(y, m)
	default:
		return Period{}, fmt.Errorf("core: unrecognized stat time %q", s)
	}
}
