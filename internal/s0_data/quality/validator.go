package quality

import (
	"fmt"
	"sort"
	"time"

	"github.com/wonny/spxlab/internal/contracts"
)

// Conflict kinds
const (
	ConflictOverlap  = "overlap"
	ConflictAdjacent = "adjacent"
)

// Inspector checks a synthesized interval table against its source records.
// Problems are reported, never corrected.
type Inspector struct {
	config Config
}

// Config holds inspection thresholds
type Config struct {
	MinGVKeyCoverage   float64 `yaml:"min_gvkey_coverage"`    // 0.95, 미달 시 경고만
	MaxDroppedRowRatio float64 `yaml:"max_dropped_row_ratio"` // 0.01
}

// DefaultConfig returns the thresholds used by the build command
func DefaultConfig() Config {
	return Config{
		MinGVKeyCoverage:   0.95,
		MaxDroppedRowRatio: 0.01,
	}
}

// Input is everything one build knows about its tables
type Input struct {
	Universe         string
	Records          []contracts.MembershipRecord
	Calendar         []time.Time
	Intervals        []contracts.MembershipInterval
	RawRows          int
	DroppedRows      int
	DuplicateRecords int
	Unmapped         []string
	GVKeysAttached   bool // false when no mapping feed was supplied
}

// NewInspector creates a new Inspector instance
func NewInspector(config Config) *Inspector {
	return &Inspector{config: config}
}

// Inspect builds the data-quality report for one synthesis run
// ⭐ SSOT: 구성종목 구간 품질 검사
func (q *Inspector) Inspect(in Input) *contracts.MembershipQualityReport {
	report := &contracts.MembershipQualityReport{
		Universe:           in.Universe,
		GeneratedAt:        time.Now().UTC(),
		TotalRecords:       len(in.Records),
		DuplicateRecords:   in.DuplicateRecords,
		DroppedRows:        in.DroppedRows,
		CalendarDays:       len(in.Calendar),
		TotalIntervals:     len(in.Intervals),
		ReaddedTickers:     []string{},
		Conflicts:          []contracts.IntervalConflict{},
		CoverageMismatches: []string{},
		UnmappedTickers:    append([]string{}, in.Unmapped...),
	}

	groups := contracts.GroupByTicker(in.Intervals)
	report.TotalTickers = len(groups)

	tickers := make([]string, 0, len(groups))
	for t := range groups {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	// 1. 구간 충돌 (겹침 / 인접)
	for _, ticker := range tickers {
		group := groups[ticker]
		if len(group) > 1 {
			report.ReaddedTickers = append(report.ReaddedTickers, ticker)
		}
		report.Conflicts = append(report.Conflicts, FindConflicts(group, in.Calendar)...)
	}

	// 2. 일별 ↔ 구간 왕복 검증
	report.CoverageMismatches = VerifyCoverage(in.Records, in.Intervals, in.Calendar)

	// 3. gvkey 커버리지
	report.GVKeyCoverage = gvkeyCoverage(groups)

	report.Warnings = q.warnings(in, report)
	return report
}

func (q *Inspector) warnings(in Input, report *contracts.MembershipQualityReport) []string {
	var out []string

	if in.GVKeysAttached && report.TotalTickers > 0 && report.GVKeyCoverage < q.config.MinGVKeyCoverage {
		out = append(out, fmt.Sprintf("gvkey coverage %.1f%% below %.1f%% (%d unmapped tickers)",
			report.GVKeyCoverage*100, q.config.MinGVKeyCoverage*100, len(report.UnmappedTickers)))
	}

	if in.RawRows > 0 && q.config.MaxDroppedRowRatio > 0 {
		ratio := float64(in.DroppedRows) / float64(in.RawRows)
		if ratio > q.config.MaxDroppedRowRatio {
			out = append(out, fmt.Sprintf("%d of %d feed rows dropped for unparsable dates", in.DroppedRows, in.RawRows))
		}
	}

	if in.DuplicateRecords > 0 {
		out = append(out, fmt.Sprintf("%d duplicate (ticker, date) rows removed from the feed", in.DuplicateRecords))
	}

	return out
}

// FindConflicts reports intervals of one ticker that overlap or touch without a
// recorded absence between them. group must be sorted by start_date.
func FindConflicts(group []contracts.MembershipInterval, calendar []time.Time) []contracts.IntervalConflict {
	var out []contracts.IntervalConflict
	for i := 1; i < len(group); i++ {
		prev, cur := group[i-1], group[i]

		switch {
		case !cur.StartDate.After(prev.EndDate):
			out = append(out, contracts.IntervalConflict{Ticker: cur.Ticker, First: prev, Second: cur, Kind: ConflictOverlap})
		case !observedBetween(calendar, prev.EndDate, cur.StartDate):
			out = append(out, contracts.IntervalConflict{Ticker: cur.Ticker, First: prev, Second: cur, Kind: ConflictAdjacent})
		}
	}
	return out
}

// observedBetween reports whether the calendar has a date strictly between a and b.
// Without a calendar, calendar days are used.
func observedBetween(calendar []time.Time, a, b time.Time) bool {
	if len(calendar) == 0 {
		return contracts.DaysBetween(a, b) > 1
	}
	i := sort.Search(len(calendar), func(i int) bool { return calendar[i].After(a) })
	return i < len(calendar) && calendar[i].Before(b)
}

// VerifyCoverage re-expands intervals over the observation calendar and returns
// the sorted tickers whose expansion differs from their daily records.
func VerifyCoverage(records []contracts.MembershipRecord, intervals []contracts.MembershipInterval, calendar []time.Time) []string {
	daily := make(map[string]map[time.Time]struct{})
	for _, r := range records {
		set, ok := daily[r.Ticker]
		if !ok {
			set = make(map[time.Time]struct{})
			daily[r.Ticker] = set
		}
		set[contracts.TruncateDay(r.Date)] = struct{}{}
	}

	expanded := Expand(intervals, calendar)

	mismatch := make(map[string]struct{})
	for ticker, want := range daily {
		got := expanded[ticker]
		if len(got) != len(want) {
			mismatch[ticker] = struct{}{}
			continue
		}
		for d := range want {
			if _, ok := got[d]; !ok {
				mismatch[ticker] = struct{}{}
				break
			}
		}
	}
	for ticker := range expanded {
		if _, ok := daily[ticker]; !ok {
			mismatch[ticker] = struct{}{}
		}
	}

	out := make([]string, 0, len(mismatch))
	for t := range mismatch {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Expand lists, per ticker, the calendar dates covered by its intervals
func Expand(intervals []contracts.MembershipInterval, calendar []time.Time) map[string]map[time.Time]struct{} {
	out := make(map[string]map[time.Time]struct{})
	for _, iv := range intervals {
		set, ok := out[iv.Ticker]
		if !ok {
			set = make(map[time.Time]struct{})
			out[iv.Ticker] = set
		}
		lo := sort.Search(len(calendar), func(i int) bool { return !calendar[i].Before(iv.StartDate) })
		for i := lo; i < len(calendar) && !calendar[i].After(iv.EndDate); i++ {
			set[calendar[i]] = struct{}{}
		}
	}
	return out
}

// gvkeyCoverage is the share of tickers with at least one mapped interval
func gvkeyCoverage(groups map[string][]contracts.MembershipInterval) float64 {
	if len(groups) == 0 {
		return 0
	}
	mapped := 0
	for _, group := range groups {
		for _, iv := range group {
			if iv.GVKey != nil {
				mapped++
				break
			}
		}
	}
	return float64(mapped) / float64(len(groups))
}
