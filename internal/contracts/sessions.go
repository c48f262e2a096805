package contracts

import "time"

// MissingSessions counts the bar periods strictly between two consecutive bars
// that have no bar of their own.
//   - daily: weekdays (a weekday holiday counts; weekends never do)
//   - weekly: whole ISO weeks
//   - monthly: whole calendar months
//
// An unknown frequency falls back to calendar days.
// ⭐ SSOT: 가격 섬(island) 분리와 내부 구멍 판정은 이 함수 하나로
func MissingSessions(freq Frequency, prev, next time.Time) int {
	prev, next = TruncateDay(prev), TruncateDay(next)
	if !next.After(prev) {
		return 0
	}

	switch freq {
	case FrequencyDaily:
		return weekdaysBetween(prev, next)
	case FrequencyWeekly:
		return max(DaysBetween(weekStart(prev), weekStart(next))/7-1, 0)
	case FrequencyMonthly:
		months := (next.Year()-prev.Year())*12 + int(next.Month()) - int(prev.Month())
		return max(months-1, 0)
	default:
		return DaysBetween(prev, next) - 1
	}
}

// GroupIslands splits ascending bar dates into contiguous ranges.
// A new island starts wherever at least one session in between has no bar.
func GroupIslands(freq Frequency, dates []time.Time) []DateRange {
	if len(dates) == 0 {
		return nil
	}

	islands := []DateRange{NewDateRange(dates[0], dates[0])}
	for _, d := range dates[1:] {
		d = TruncateDay(d)
		last := &islands[len(islands)-1]
		if !d.After(last.End) {
			continue
		}
		if MissingSessions(freq, last.End, d) > 0 {
			islands = append(islands, DateRange{Start: d, End: d})
			continue
		}
		last.End = d
	}
	return islands
}

// weekdaysBetween counts Mon-Fri days strictly between a and b (a < b)
func weekdaysBetween(a, b time.Time) int {
	days := DaysBetween(a, b) - 1
	if days <= 0 {
		return 0
	}

	full := days / 7
	n := full * 5
	d := a.AddDate(0, 0, full*7+1)
	for i := 0; i < days%7; i++ {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n++
		}
		d = d.AddDate(0, 0, 1)
	}
	return n
}

// weekStart returns the Monday of t's ISO week
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
