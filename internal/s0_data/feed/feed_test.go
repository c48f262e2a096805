package feed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/internal/contracts"
)

func TestParseMembership(t *testing.T) {
	raw := `date,tickers
2024-01-02,"aapl, MSFT ,AMD"
2024-01-03,"AAPL,MSFT,AMD,AAPL"
not-a-date,"IBM"
2024/01/04,"AAPL"
`

	feed, err := ParseMembership(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, 4, feed.RawRows)
	assert.Equal(t, 1, feed.DroppedRows)
	assert.Equal(t, 1, feed.DuplicateRecords)
	require.Len(t, feed.Records, 7)

	// sorted by (date, ticker), upper-cased and trimmed
	assert.Equal(t, contracts.MembershipRecord{Ticker: "AAPL", Date: contracts.Day(2024, 1, 2)}, feed.Records[0])
	assert.Equal(t, "AMD", feed.Records[1].Ticker)
	assert.Equal(t, "MSFT", feed.Records[2].Ticker)
	assert.Equal(t, contracts.Day(2024, 1, 4), feed.Records[6].Date)
}

func TestParseMembership_UnquotedListSpills(t *testing.T) {
	raw := "Date,Tickers\n2024-01-02,AAPL,MSFT\n"

	feed, err := ParseMembership(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, feed.Records, 2)
	assert.Equal(t, "MSFT", feed.Records[1].Ticker)
}

func TestParseMembership_MissingColumn(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty file", ""},
		{"no tickers column", "date,symbols\n2024-01-02,AAPL\n"},
		{"no date column", "day,tickers\n2024-01-02,AAPL\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMembership(strings.NewReader(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMissingColumn)
		})
	}
}

func TestReadMembershipFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sp500.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,tickers\n2024-01-02,\"A,B\"\n"), 0o644))

	feed, err := ReadMembershipFile(path)
	require.NoError(t, err)
	assert.Len(t, feed.Records, 2)

	_, err = ReadMembershipFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestMergeRecords(t *testing.T) {
	base := []contracts.MembershipRecord{
		{Ticker: "AAPL", Date: contracts.Day(2024, 1, 2)},
		{Ticker: "MSFT", Date: contracts.Day(2024, 1, 2)},
	}
	extra := []contracts.MembershipRecord{
		{Ticker: "AAPL", Date: contracts.Day(2024, 1, 2)},
		{Ticker: "AAPL", Date: contracts.Day(2024, 1, 3)},
	}

	merged, dups := MergeRecords(base, extra)
	assert.Equal(t, 1, dups)
	require.Len(t, merged, 3)
	assert.Equal(t, contracts.Day(2024, 1, 3), merged[2].Date)
}

func TestParseGVKeyMap(t *testing.T) {
	raw := `gvkey,ticker,conm
1690,aapl,APPLE INC
12141,MSFT,MICROSOFT
1690,AAPL,APPLE INC
9999,MSFT,MICROSOFT DUP
oops,IBM,IBM
`

	m, err := ParseGVKeyMap(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 1, m.Skipped)
	assert.Equal(t, []string{"MSFT"}, m.Ambiguous)

	key, ok := m.Lookup("MSFT")
	require.True(t, ok)
	assert.Equal(t, int64(12141), key, "first mapping wins")

	_, err = ParseGVKeyMap(strings.NewReader("ticker\nAAPL\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestGVKeyMap_Attach(t *testing.T) {
	m := NewGVKeyMap(map[string]int64{"AAPL": 1690})

	intervals := []contracts.MembershipInterval{
		{Ticker: "AAPL", StartDate: contracts.Day(2000, 1, 3), EndDate: contracts.Day(2025, 7, 9)},
		{Ticker: "TEST", StartDate: contracts.Day(2010, 1, 4), EndDate: contracts.Day(2011, 1, 4)},
		{Ticker: "TEST", StartDate: contracts.Day(2012, 1, 4), EndDate: contracts.Day(2013, 1, 4)},
	}

	unmapped := m.Attach(intervals)
	assert.Equal(t, []string{"TEST"}, unmapped)

	require.NotNil(t, intervals[0].GVKey)
	assert.Equal(t, int64(1690), *intervals[0].GVKey)
	assert.Nil(t, intervals[1].GVKey)

	// a nil map leaves everything unmapped
	var empty *GVKeyMap
	assert.Len(t, empty.Attach(intervals), 2)
}
