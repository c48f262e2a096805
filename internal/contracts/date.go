package contracts

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used across feeds, stores and APIs
const DateLayout = "2006-01-02"

// Day returns the UTC midnight for the given calendar date
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay drops the clock part so dates compare as calendar days
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in UTC
func Today() time.Time {
	return TruncateDay(time.Now())
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar date
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// DaysBetween returns the number of calendar days from a to b (negative if b is before a)
func DaysBetween(a, b time.Time) int {
	return int(TruncateDay(b).Sub(TruncateDay(a)).Hours() / 24)
}

// DateRange is an inclusive [Start, End] range of calendar dates
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange builds a range with both ends truncated to calendar days
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: TruncateDay(start), End: TruncateDay(end)}
}

// Valid reports whether Start <= End
func (r DateRange) Valid() bool {
	return !r.Start.After(r.End)
}

// Days returns the inclusive number of calendar days in the range
func (r DateRange) Days() int {
	if !r.Valid() {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

// Contains reports whether d falls inside the range
func (r DateRange) Contains(d time.Time) bool {
	d = TruncateDay(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Overlaps reports whether the two ranges share at least one day
func (r DateRange) Overlaps(o DateRange) bool {
	return !r.Start.After(o.End) && !r.End.Before(o.Start)
}

// Intersect returns the shared part of the two ranges
func (r DateRange) Intersect(o DateRange) (DateRange, bool) {
	if !r.Overlaps(o) {
		return DateRange{}, false
	}
	out := DateRange{Start: r.Start, End: r.End}
	if o.Start.After(out.Start) {
		out.Start = o.Start
	}
	if o.End.Before(out.End) {
		out.End = o.End
	}
	return out, true
}

// String formats the range as "start ~ end"
func (r DateRange) String() string {
	return fmt.Sprintf("%s ~ %s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
}

// MarshalJSON keeps JSON output in calendar format
func (r DateRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(dateRangeJSON{
		Start: r.Start.Format(DateLayout),
		End:   r.End.Format(DateLayout),
	})
}

// UnmarshalJSON accepts the calendar format written by MarshalJSON
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw dateRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := ParseDate(raw.Start)
	if err != nil {
		return err
	}
	end, err := ParseDate(raw.End)
	if err != nil {
		return err
	}
	r.Start, r.End = start, end
	return nil
}

type dateRangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}
