package contracts

import (
	"sort"
	"strings"
	"time"
)

// NormalizeTicker trims and upper-cases a symbol.
// ⭐ SSOT: 티커 정규화 규칙 (피드 적재와 조회 모두 이 규칙)
func NormalizeTicker(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// MembershipRecord is one day of confirmed index presence
// ⭐ SSOT: 일별 구성종목 레코드 (ticker, date)
type MembershipRecord struct {
	Ticker string    `json:"ticker"`
	Date   time.Time `json:"date"`
}

// MembershipInterval is one maximal contiguous run of presence for a ticker,
// measured on the observation calendar of the source feed
// ⭐ SSOT: 구성종목 편입 구간
type MembershipInterval struct {
	Ticker    string    `json:"ticker"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	GVKey     *int64    `json:"gvkey,omitempty"` // 식별자 매핑이 없으면 nil
}

// Range returns the interval as a DateRange
func (i MembershipInterval) Range() DateRange {
	return DateRange{Start: i.StartDate, End: i.EndDate}
}

// ActiveOn reports whether the ticker was a member on date d
func (i MembershipInterval) ActiveOn(d time.Time) bool {
	return i.Range().Contains(d)
}

// OverlapsPeriod reports start_date <= end AND end_date >= start
func (i MembershipInterval) OverlapsPeriod(p DateRange) bool {
	return !i.StartDate.After(p.End) && !i.EndDate.Before(p.Start)
}

// OverlapPeriod is the intersection of one membership interval with a research window.
// Membership keeps the unclipped interval bounds for reporting.
type OverlapPeriod struct {
	Membership DateRange `json:"membership"`
	Effective  DateRange `json:"effective"`
}

// SortIntervals orders intervals by (ticker, start_date) in place
func SortIntervals(intervals []MembershipInterval) {
	sort.Slice(intervals, func(a, b int) bool {
		if intervals[a].Ticker != intervals[b].Ticker {
			return intervals[a].Ticker < intervals[b].Ticker
		}
		return intervals[a].StartDate.Before(intervals[b].StartDate)
	})
}

// GroupByTicker splits a sorted or unsorted interval table per ticker,
// each group ordered by start_date
func GroupByTicker(intervals []MembershipInterval) map[string][]MembershipInterval {
	out := make(map[string][]MembershipInterval)
	for _, iv := range intervals {
		out[iv.Ticker] = append(out[iv.Ticker], iv)
	}
	for ticker := range out {
		group := out[ticker]
		sort.Slice(group, func(a, b int) bool {
			return group[a].StartDate.Before(group[b].StartDate)
		})
	}
	return out
}

// TickerTransition is a directed edge old -> new in the rename/merger table.
// Delisted marks a sink without successor.
type TickerTransition struct {
	Old      string `json:"old" yaml:"old"`
	New      string `json:"new,omitempty" yaml:"new,omitempty"`
	Delisted bool   `json:"delisted,omitempty" yaml:"delisted,omitempty"`
}

// IntervalConflict describes two intervals of one ticker that overlap or touch
type IntervalConflict struct {
	Ticker string             `json:"ticker"`
	First  MembershipInterval `json:"first"`
	Second MembershipInterval `json:"second"`
	Kind   string             `json:"kind"` // overlap | adjacent
}

// MembershipQualityReport is the data-quality report produced on every build.
// Problems are reported for review, never auto-corrected.
type MembershipQualityReport struct {
	Universe           string             `json:"universe"`
	GeneratedAt        time.Time          `json:"generated_at"`
	TotalRecords       int                `json:"total_records"`
	DuplicateRecords   int                `json:"duplicate_records"`
	DroppedRows        int                `json:"dropped_rows"`
	CalendarDays       int                `json:"calendar_days"`
	TotalTickers       int                `json:"total_tickers"`
	TotalIntervals     int                `json:"total_intervals"`
	ReaddedTickers     []string           `json:"readded_tickers"`
	Conflicts          []IntervalConflict `json:"conflicts"`
	CoverageMismatches []string           `json:"coverage_mismatches"` // 일별 ↔ 구간 왕복 불일치 종목
	UnmappedTickers    []string           `json:"unmapped_tickers"`
	GVKeyCoverage      float64            `json:"gvkey_coverage"`
	Warnings           []string           `json:"warnings,omitempty"`
}

// Passed reports whether the synthesized table is structurally sound
func (r *MembershipQualityReport) Passed() bool {
	return len(r.Conflicts) == 0 && len(r.CoverageMismatches) == 0
}
