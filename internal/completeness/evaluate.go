package completeness

import (
	"errors"
	"fmt"
	"sort"

	"github.com/wonny/spxlab/internal/contracts"
)

// ErrInvalidRange is returned for a window, interval or actual range that ends before it starts
var ErrInvalidRange = errors.New("completeness: invalid date range")

// Request is everything one completeness decision needs
type Request struct {
	Ticker    string
	Intervals []contracts.MembershipInterval // 비어 있으면 membership unknown
	Window    contracts.DateRange            // research window
	Actual    []contracts.DateRange          // stored data islands, any order
	Tolerance int
	Frequency contracts.Frequency // selects how interior holes are counted
	SpanMode  bool                // collapse all intervals into one span (ignores membership gaps)
}

// Evaluate decides completeness for one ticker without any I/O.
// ⭐ SSOT: 갭 인식 완결성 판정은 여기서만
func Evaluate(req Request) (contracts.CompletenessResult, error) {
	window := contracts.NewDateRange(req.Window.Start, req.Window.End)
	if !window.Valid() {
		return nil, fmt.Errorf("research window %s: %w", window, ErrInvalidRange)
	}
	if req.Tolerance < 0 {
		return nil, fmt.Errorf("negative tolerance %d: %w", req.Tolerance, ErrInvalidRange)
	}

	actual, err := normalizeActual(req.Actual)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Ticker, err)
	}

	// membership unknown → 연구 기간 전체를 그대로 검사
	if len(req.Intervals) == 0 {
		p := evaluatePeriod(window, actual, req.Frequency, req.Tolerance)
		res := p.single(req.Ticker)
		res.Reason = contracts.ReasonMembershipUnknown
		return res, nil
	}

	memberships, err := membershipRanges(req.Intervals, req.SpanMode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Ticker, err)
	}

	overlaps := Overlaps(memberships, window)
	switch len(overlaps) {
	case 0:
		return &contracts.SinglePeriodResult{
			Ticker:   req.Ticker,
			Status:   contracts.StatusComplete,
			Reason:   contracts.ReasonNoOverlap,
			Required: &window,
		}, nil

	case 1:
		p := evaluatePeriod(overlaps[0].Effective, actual, req.Frequency, req.Tolerance)
		res := p.single(req.Ticker)
		m := overlaps[0].Membership
		res.Membership = &m
		return res, nil
	}

	out := &contracts.MultiPeriodResult{
		Ticker:    req.Ticker,
		Intervals: make([]contracts.PeriodCompleteness, 0, len(overlaps)),
	}
	complete, missing := 0, 0
	for _, o := range overlaps {
		p := evaluatePeriod(o.Effective, actual, req.Frequency, req.Tolerance)
		pc := p.period(o.Membership)
		out.Intervals = append(out.Intervals, pc)
		out.Summary.TotalMissingDays += pc.MissingDays

		switch pc.Status {
		case contracts.StatusComplete:
			complete++
		case contracts.StatusMissing:
			missing++
		}
	}

	out.Summary.TotalIntervals = len(overlaps)
	out.Summary.HasGaps = len(overlaps) > 1
	switch {
	case complete == len(overlaps):
		out.Status = contracts.StatusComplete
	case missing == len(overlaps):
		out.Status = contracts.StatusMissing
	default:
		out.Status = contracts.StatusPartial
	}
	return out, nil
}

// Overlaps intersects each membership range with the window, in order.
// Ranges that do not satisfy start <= window.End AND end >= window.Start contribute nothing.
func Overlaps(memberships []contracts.DateRange, window contracts.DateRange) []contracts.OverlapPeriod {
	var out []contracts.OverlapPeriod
	for _, m := range memberships {
		eff, ok := m.Intersect(window)
		if !ok {
			continue
		}
		out = append(out, contracts.OverlapPeriod{Membership: m, Effective: eff})
	}
	return out
}

// membershipRanges validates and orders the intervals; span mode collapses them
func membershipRanges(intervals []contracts.MembershipInterval, spanMode bool) ([]contracts.DateRange, error) {
	ranges := make([]contracts.DateRange, 0, len(intervals))
	for _, iv := range intervals {
		r := contracts.NewDateRange(iv.StartDate, iv.EndDate)
		if !r.Valid() {
			return nil, fmt.Errorf("membership interval %s: %w", r, ErrInvalidRange)
		}
		ranges = append(ranges, r)
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start.Before(ranges[j].Start) })

	if !spanMode {
		return ranges, nil
	}

	span := ranges[0]
	for _, r := range ranges[1:] {
		if r.End.After(span.End) {
			span.End = r.End
		}
	}
	return []contracts.DateRange{span}, nil
}

// normalizeActual sorts the islands and merges those that overlap or touch
func normalizeActual(actual []contracts.DateRange) ([]contracts.DateRange, error) {
	if len(actual) == 0 {
		return nil, nil
	}

	sorted := make([]contracts.DateRange, 0, len(actual))
	for _, r := range actual {
		r = contracts.NewDateRange(r.Start, r.End)
		if !r.Valid() {
			return nil, fmt.Errorf("actual data range %s: %w", r, ErrInvalidRange)
		}
		sorted = append(sorted, r)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []contracts.DateRange{sorted[0]}
	for _, r := range sorted[1:] {
		last := &merged[len(merged)-1]
		if contracts.DaysBetween(last.End, r.Start) <= 1 {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged, nil
}

// periodResult is the completeness of one effective period
type periodResult struct {
	effective contracts.DateRange
	status    contracts.Status
	actual    *contracts.DateRange
	startGap  int
	endGap    int
	missing   int
	windows   []contracts.DateRange
}

// holeAllowance is how many missing sessions an interior hole may contain.
// Daily holes count weekdays, so a weekday holiday next to a weekend stays
// inside the tolerance; weekly and monthly bars allow no skipped period.
func holeAllowance(freq contracts.Frequency, tolerance int) int {
	switch freq {
	case contracts.FrequencyWeekly, contracts.FrequencyMonthly:
		return 0
	default:
		return tolerance
	}
}

// evaluatePeriod checks one effective period against merged islands.
// A boundary gap is tolerated while gap <= tolerance (calendar days);
// an interior hole while its missing sessions <= holeAllowance.
func evaluatePeriod(effective contracts.DateRange, actual []contracts.DateRange, freq contracts.Frequency, tolerance int) periodResult {
	res := periodResult{effective: effective}

	var islands []contracts.DateRange
	for _, r := range actual {
		if clipped, ok := r.Intersect(effective); ok {
			islands = append(islands, clipped)
		}
	}

	if len(islands) == 0 {
		res.status = contracts.StatusMissing
		res.missing = effective.Days()
		res.windows = []contracts.DateRange{effective}
		return res
	}

	first, last := islands[0], islands[len(islands)-1]
	res.actual = &contracts.DateRange{Start: first.Start, End: last.End}
	res.startGap = contracts.DaysBetween(effective.Start, first.Start)
	res.endGap = contracts.DaysBetween(last.End, effective.End)

	if res.startGap > tolerance {
		res.windows = append(res.windows, contracts.DateRange{
			Start: effective.Start,
			End:   first.Start.AddDate(0, 0, -1),
		})
		res.missing += res.startGap
	}

	// 내부 구멍 (섬 사이)
	allowance := holeAllowance(freq, tolerance)
	for i := 1; i < len(islands); i++ {
		if contracts.MissingSessions(freq, islands[i-1].End, islands[i].Start) <= allowance {
			continue
		}
		res.windows = append(res.windows, contracts.DateRange{
			Start: islands[i-1].End.AddDate(0, 0, 1),
			End:   islands[i].Start.AddDate(0, 0, -1),
		})
		res.missing += contracts.DaysBetween(islands[i-1].End, islands[i].Start) - 1
	}

	if res.endGap > tolerance {
		res.windows = append(res.windows, contracts.DateRange{
			Start: last.End.AddDate(0, 0, 1),
			End:   effective.End,
		})
		res.missing += res.endGap
	}

	if len(res.windows) > 0 {
		res.status = contracts.StatusPartial
	} else {
		res.status = contracts.StatusComplete
	}
	return res
}

// fetch is the smallest range covering every fetch window
func (p periodResult) fetch() *contracts.DateRange {
	if len(p.windows) == 0 {
		return nil
	}
	return &contracts.DateRange{Start: p.windows[0].Start, End: p.windows[len(p.windows)-1].End}
}

func (p periodResult) single(ticker string) *contracts.SinglePeriodResult {
	eff := p.effective
	return &contracts.SinglePeriodResult{
		Ticker:           ticker,
		Status:           p.status,
		Required:         &eff,
		Actual:           p.actual,
		MissingStartDays: p.startGap,
		MissingEndDays:   p.endGap,
		MissingDays:      p.missing,
		Fetch:            p.fetch(),
		Windows:          p.windows,
	}
}

func (p periodResult) period(membership contracts.DateRange) contracts.PeriodCompleteness {
	return contracts.PeriodCompleteness{
		Membership:       membership,
		Effective:        p.effective,
		Status:           p.status,
		Actual:           p.actual,
		MissingStartDays: p.startGap,
		MissingEndDays:   p.endGap,
		MissingDays:      p.missing,
		Fetch:            p.fetch(),
		Windows:          p.windows,
	}
}
