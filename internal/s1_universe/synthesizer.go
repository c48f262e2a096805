package s1_universe

import (
	"sort"
	"time"

	"github.com/wonny/spxlab/internal/contracts"
)

// Synthesis is the output of one interval synthesis pass
type Synthesis struct {
	Calendar  []time.Time // distinct observation dates, ascending
	Intervals []contracts.MembershipInterval
}

// ObservationCalendar returns the sorted distinct dates present in records
func ObservationCalendar(records []contracts.MembershipRecord) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, r := range records {
		seen[contracts.TruncateDay(r.Date)] = struct{}{}
	}

	calendar := make([]time.Time, 0, len(seen))
	for d := range seen {
		calendar = append(calendar, d)
	}
	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Before(calendar[j]) })
	return calendar
}

// SynthesizeIntervals converts daily presence into maximal runs per ticker.
// Runs are measured on the shared observation calendar: a ticker absent from a
// recorded snapshot ends its interval at its last observed date, while dates the
// source never recorded do not break a run.
// Records before minDate are ignored (zero minDate keeps everything).
// ⭐ SSOT: 구간 합성은 여기서만
func SynthesizeIntervals(records []contracts.MembershipRecord, minDate time.Time) *Synthesis {
	records = FilterFrom(records, minDate)

	calendar := ObservationCalendar(records)
	pos := make(map[time.Time]int, len(calendar))
	for i, d := range calendar {
		pos[d] = i
	}

	// presence vector per ticker over the calendar
	presence := make(map[string][]bool)
	for _, r := range records {
		p, ok := presence[r.Ticker]
		if !ok {
			p = make([]bool, len(calendar))
			presence[r.Ticker] = p
		}
		p[pos[contracts.TruncateDay(r.Date)]] = true
	}

	tickers := make([]string, 0, len(presence))
	for t := range presence {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	out := &Synthesis{Calendar: calendar}
	for _, ticker := range tickers {
		for _, run := range runs(presence[ticker]) {
			out.Intervals = append(out.Intervals, contracts.MembershipInterval{
				Ticker:    ticker,
				StartDate: calendar[run[0]],
				EndDate:   calendar[run[1]],
			})
		}
	}
	return out
}

// FilterFrom drops records dated before minDate (zero minDate keeps everything)
func FilterFrom(records []contracts.MembershipRecord, minDate time.Time) []contracts.MembershipRecord {
	if minDate.IsZero() {
		return records
	}
	minDate = contracts.TruncateDay(minDate)
	kept := make([]contracts.MembershipRecord, 0, len(records))
	for _, r := range records {
		if !contracts.TruncateDay(r.Date).Before(minDate) {
			kept = append(kept, r)
		}
	}
	return kept
}

// runs returns [start, end] index pairs of consecutive true values.
// start: present[d] && !present[d-1]; end: present[d] && !present[d+1].
func runs(present []bool) [][2]int {
	var starts, ends []int
	n := len(present)
	for d := 0; d < n; d++ {
		if !present[d] {
			continue
		}
		if d == 0 || !present[d-1] {
			starts = append(starts, d)
		}
		if d == n-1 || !present[d+1] {
			ends = append(ends, d)
		}
	}

	out := make([][2]int, len(starts))
	for i := range starts {
		out[i] = [2]int{starts[i], ends[i]}
	}
	return out
}
