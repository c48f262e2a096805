package s1_universe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s0_data/quality"
)

func rec(ticker string, d time.Time) contracts.MembershipRecord {
	return contracts.MembershipRecord{Ticker: ticker, Date: d}
}

// snapshots builds records from date -> tickers
func snapshots(days map[time.Time][]string) []contracts.MembershipRecord {
	var out []contracts.MembershipRecord
	for d, tickers := range days {
		for _, t := range tickers {
			out = append(out, rec(t, d))
		}
	}
	return out
}

func TestSynthesizeIntervals_Basic(t *testing.T) {
	d1, d2, d3, d4, d5 := contracts.Day(2024, 1, 2), contracts.Day(2024, 1, 3), contracts.Day(2024, 1, 4), contracts.Day(2024, 1, 5), contracts.Day(2024, 1, 8)

	records := snapshots(map[time.Time][]string{
		d1: {"AAPL", "AMD", "MSFT"},
		d2: {"AAPL", "AMD", "MSFT"},
		d3: {"AAPL", "MSFT"},
		d4: {"AAPL", "MSFT"},
		d5: {"AAPL", "AMD"},
	})

	syn := SynthesizeIntervals(records, time.Time{})
	require.Len(t, syn.Calendar, 5)

	assert.Equal(t, []contracts.MembershipInterval{
		{Ticker: "AAPL", StartDate: d1, EndDate: d5},
		{Ticker: "AMD", StartDate: d1, EndDate: d2},
		{Ticker: "AMD", StartDate: d5, EndDate: d5},
		{Ticker: "MSFT", StartDate: d1, EndDate: d4},
	}, syn.Intervals)
}

func TestSynthesizeIntervals_CalendarGapsDoNotBreakRuns(t *testing.T) {
	// source only recorded month-end snapshots
	jan, feb, mar := contracts.Day(2024, 1, 31), contracts.Day(2024, 2, 29), contracts.Day(2024, 3, 28)
	records := snapshots(map[time.Time][]string{
		jan: {"IBM"},
		feb: {"IBM"},
		mar: {"IBM"},
	})

	syn := SynthesizeIntervals(records, time.Time{})
	require.Len(t, syn.Intervals, 1)
	assert.Equal(t, jan, syn.Intervals[0].StartDate)
	assert.Equal(t, mar, syn.Intervals[0].EndDate)
}

func TestSynthesizeIntervals_EdgeDates(t *testing.T) {
	days := []time.Time{
		contracts.Day(2024, 1, 2), contracts.Day(2024, 1, 3), contracts.Day(2024, 1, 4),
		contracts.Day(2024, 1, 5), contracts.Day(2024, 1, 8),
	}

	var records []contracts.MembershipRecord
	for _, d := range days {
		records = append(records, rec("SPY", d))
	}
	records = append(records,
		rec("FIRST", days[0]),
		rec("LAST", days[4]),
		rec("ODD", days[0]), rec("ODD", days[2]), rec("ODD", days[4]),
	)

	syn := SynthesizeIntervals(records, time.Time{})
	groups := contracts.GroupByTicker(syn.Intervals)

	// single-day intervals at both calendar boundaries
	require.Len(t, groups["FIRST"], 1)
	assert.Equal(t, days[0], groups["FIRST"][0].StartDate)
	assert.Equal(t, days[0], groups["FIRST"][0].EndDate)

	require.Len(t, groups["LAST"], 1)
	assert.Equal(t, days[4], groups["LAST"][0].StartDate)
	assert.Equal(t, days[4], groups["LAST"][0].EndDate)

	// isolated dates: one interval each
	require.Len(t, groups["ODD"], 3)
	for i, want := range []time.Time{days[0], days[2], days[4]} {
		assert.Equal(t, want, groups["ODD"][i].StartDate)
		assert.Equal(t, want, groups["ODD"][i].EndDate)
	}
}

func TestSynthesizeIntervals_MinDate(t *testing.T) {
	records := []contracts.MembershipRecord{
		rec("AMD", contracts.Day(1999, 12, 31)),
		rec("AMD", contracts.Day(2000, 1, 3)),
		rec("AMD", contracts.Day(2000, 1, 4)),
	}

	syn := SynthesizeIntervals(records, contracts.Day(2000, 1, 1))
	require.Len(t, syn.Calendar, 2)
	require.Len(t, syn.Intervals, 1)
	assert.Equal(t, contracts.Day(2000, 1, 3), syn.Intervals[0].StartDate)
}

func TestSynthesizeIntervals_Empty(t *testing.T) {
	syn := SynthesizeIntervals(nil, time.Time{})
	assert.Empty(t, syn.Calendar)
	assert.Empty(t, syn.Intervals)
}

// removed in 2013, re-added in 2017
func amdLikeRecords() []contracts.MembershipRecord {
	var records []contracts.MembershipRecord
	for y := 2010; y <= 2020; y++ {
		d := contracts.Day(y, 6, 30)
		records = append(records, rec("AAPL", d))
		if y <= 2013 || y >= 2017 {
			records = append(records, rec("AMD", d))
		}
		if y <= 2015 {
			records = append(records, rec("YHOO", d))
		}
	}
	return records
}

func TestSynthesizeIntervals_Properties(t *testing.T) {
	records := amdLikeRecords()
	syn := SynthesizeIntervals(records, time.Time{})

	t.Run("non-overlap with a recorded gap", func(t *testing.T) {
		for ticker, group := range contracts.GroupByTicker(syn.Intervals) {
			assert.Empty(t, quality.FindConflicts(group, syn.Calendar), ticker)
			for i := 1; i < len(group); i++ {
				assert.True(t, group[i-1].EndDate.Before(group[i].StartDate), ticker)
			}
		}
	})

	t.Run("round trip coverage", func(t *testing.T) {
		assert.Empty(t, quality.VerifyCoverage(records, syn.Intervals, syn.Calendar))
	})

	t.Run("re-added ticker has two intervals", func(t *testing.T) {
		amd := contracts.GroupByTicker(syn.Intervals)["AMD"]
		require.Len(t, amd, 2)
		assert.Equal(t, contracts.Day(2013, 6, 30), amd[0].EndDate)
		assert.Equal(t, contracts.Day(2017, 6, 30), amd[1].StartDate)
	})
}

func TestRuns(t *testing.T) {
	tests := []struct {
		name    string
		present []bool
		want    [][2]int
	}{
		{"empty", nil, [][2]int{}},
		{"all absent", []bool{false, false}, [][2]int{}},
		{"all present", []bool{true, true, true}, [][2]int{{0, 2}}},
		{"two runs", []bool{true, true, false, true}, [][2]int{{0, 1}, {3, 3}}},
		{"inner run", []bool{false, true, true, false}, [][2]int{{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runs(tt.present))
		})
	}
}
