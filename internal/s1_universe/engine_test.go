package s1_universe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/pkg/config"
	"github.com/wonny/spxlab/pkg/logger"
	"github.com/wonny/spxlab/pkg/redis"
)

type staticCurrent struct {
	tickers []string
	err     error
	calls   int
}

func (s *staticCurrent) CurrentMembers(ctx context.Context) ([]string, error) {
	s.calls++
	return s.tickers, s.err
}

func seededEngine(t *testing.T) (*Engine, *ParquetStore) {
	t.Helper()
	ctx := context.Background()

	store := NewParquetStore(t.TempDir(), "sp500", false)
	syn := SynthesizeIntervals(amdLikeRecords(), time.Time{})
	require.NoError(t, store.CommitBuild(ctx, &Build{
		Intervals: syn.Intervals,
		Manifest:  NewManifest("sp500", "test", 0, syn),
	}))

	return NewEngine(store, logger.Nop()), store
}

func TestEngine_MembersAsOf(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		date time.Time
		want []string
	}{
		{"before removal", contracts.Day(2012, 6, 30), []string{"AAPL", "AMD", "YHOO"}},
		{"while removed", contracts.Day(2015, 6, 30), []string{"AAPL", "YHOO"}},
		{"after re-add", contracts.Day(2018, 6, 30), []string{"AAPL", "AMD"}},
		{"between snapshots", contracts.Day(2018, 12, 31), []string{"AAPL", "AMD"}},
		{"before calendar", contracts.Day(2001, 1, 1), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := engine.MembersAsOf(ctx, tt.date)
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.Tickers)
			assert.True(t, u.MembershipKnown)
			assert.Equal(t, contracts.SourceStore, u.Source)
			assert.NotEmpty(t, u.BuildID)
		})
	}
}

func TestEngine_MembersAsOf_DefaultsToToday(t *testing.T) {
	engine, _ := seededEngine(t)
	engine.now = func() time.Time { return contracts.Day(2016, 1, 1) }

	u, err := engine.MembersAsOf(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, contracts.Day(2016, 1, 1), u.Date)
	assert.Equal(t, []string{"AAPL"}, u.Tickers)
}

func TestEngine_HistoricalMembers(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	start, end := contracts.Day(2014, 1, 1), contracts.Day(2018, 12, 31)
	hist, err := engine.HistoricalMembers(ctx, start, end, HistoricalOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "AMD", "YHOO"}, hist.Tickers)
	assert.Equal(t, start, hist.PeriodStart)
	assert.Equal(t, end, hist.Date)

	_, err = engine.HistoricalMembers(ctx, end, start, HistoricalOptions{})
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestEngine_HistoricalSupersetOfAsOf(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	windows := []contracts.DateRange{
		{Start: contracts.Day(2010, 1, 1), End: contracts.Day(2020, 12, 31)},
		{Start: contracts.Day(2014, 1, 1), End: contracts.Day(2016, 12, 31)},
		{Start: contracts.Day(2017, 1, 1), End: contracts.Day(2019, 6, 30)},
		{Start: contracts.Day(2012, 6, 30), End: contracts.Day(2012, 6, 30)},
	}

	for _, w := range windows {
		t.Run(w.String(), func(t *testing.T) {
			hist, err := engine.HistoricalMembers(ctx, w.Start, w.End, HistoricalOptions{})
			require.NoError(t, err)
			asOf, err := engine.MembersAsOf(ctx, w.End)
			require.NoError(t, err)

			for _, ticker := range asOf.Tickers {
				assert.True(t, hist.Contains(ticker), ticker)
			}
		})
	}

	// YHOO left in 2015 and never came back: strict superset
	hist, err := engine.HistoricalMembers(ctx, contracts.Day(2010, 1, 1), contracts.Day(2020, 12, 31), HistoricalOptions{})
	require.NoError(t, err)
	asOf, err := engine.MembersAsOf(ctx, contracts.Day(2020, 12, 31))
	require.NoError(t, err)
	assert.Greater(t, hist.Count(), asOf.Count())
	assert.True(t, hist.Contains("YHOO"))
	assert.False(t, asOf.Contains("YHOO"))
}

func TestEngine_IntervalsFor(t *testing.T) {
	engine, _ := seededEngine(t)
	ctx := context.Background()

	amd, err := engine.IntervalsFor(ctx, "AMD")
	require.NoError(t, err)
	require.Len(t, amd, 2)
	assert.True(t, amd[0].StartDate.Before(amd[1].StartDate))

	// returned slice is a copy
	amd[0].Ticker = "MUTATED"
	again, err := engine.IntervalsFor(ctx, "AMD")
	require.NoError(t, err)
	assert.Equal(t, "AMD", again[0].Ticker)

	none, err := engine.IntervalsFor(ctx, "ZZZZ")
	require.NoError(t, err)
	assert.Nil(t, none)

	lower, err := engine.IntervalsFor(ctx, " amd")
	require.NoError(t, err)
	assert.Equal(t, again, lower)

	all, err := engine.AllIntervals(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestEngine_MissingStore(t *testing.T) {
	ctx := context.Background()
	store := NewParquetStore(t.TempDir(), "sp500", false)
	current := &staticCurrent{tickers: []string{"MSFT", "AAPL"}}
	engine := NewEngine(store, logger.Nop()).WithCurrentSource(current)

	available, err := engine.Available(ctx)
	require.NoError(t, err)
	assert.False(t, available)

	t.Run("members_as_of is unknown, not empty", func(t *testing.T) {
		u, err := engine.MembersAsOf(ctx, contracts.Day(2020, 1, 2))
		require.NoError(t, err)
		assert.False(t, u.MembershipKnown)
		assert.Equal(t, contracts.SourceUnavailable, u.Source)
		assert.Empty(t, u.Tickers)
	})

	t.Run("intervals_for degrades to nil", func(t *testing.T) {
		ivs, err := engine.IntervalsFor(ctx, "AAPL")
		require.NoError(t, err)
		assert.Nil(t, ivs)
	})

	t.Run("historical without opt-in fails", func(t *testing.T) {
		_, err := engine.HistoricalMembers(ctx, contracts.Day(2014, 1, 1), contracts.Day(2024, 12, 31), HistoricalOptions{})
		assert.ErrorIs(t, err, ErrMembershipUnavailable)
		assert.Equal(t, 0, current.calls)
	})

	t.Run("historical with opt-in falls back", func(t *testing.T) {
		u, err := engine.HistoricalMembers(ctx, contracts.Day(2014, 1, 1), contracts.Day(2024, 12, 31),
			HistoricalOptions{AllowCurrentFallback: true})
		require.NoError(t, err)
		assert.Equal(t, []string{"AAPL", "MSFT"}, u.Tickers)
		assert.False(t, u.MembershipKnown)
		assert.Equal(t, contracts.SourceCurrentFallback, u.Source)
	})

	t.Run("fallback source error propagates", func(t *testing.T) {
		failing := NewEngine(store, logger.Nop()).WithCurrentSource(&staticCurrent{err: errors.New("scrape failed")})
		_, err := failing.HistoricalMembers(ctx, contracts.Day(2014, 1, 1), contracts.Day(2024, 12, 31),
			HistoricalOptions{AllowCurrentFallback: true})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrMembershipUnavailable)
	})
}

func TestEngine_Reload(t *testing.T) {
	ctx := context.Background()
	store := NewParquetStore(t.TempDir(), "sp500", false)
	engine := NewEngine(store, logger.Nop())

	u, err := engine.MembersAsOf(ctx, contracts.Day(2012, 6, 30))
	require.NoError(t, err)
	assert.False(t, u.MembershipKnown)

	// store appears after the first load; the engine keeps its view until Reload
	syn := SynthesizeIntervals(amdLikeRecords(), time.Time{})
	require.NoError(t, store.WriteIntervals(ctx, syn.Intervals))

	u, err = engine.MembersAsOf(ctx, contracts.Day(2012, 6, 30))
	require.NoError(t, err)
	assert.False(t, u.MembershipKnown)

	require.NoError(t, engine.Reload(ctx))
	u, err = engine.MembersAsOf(ctx, contracts.Day(2012, 6, 30))
	require.NoError(t, err)
	assert.True(t, u.MembershipKnown)
	assert.Empty(t, u.BuildID, "no manifest written")

	m, err := engine.Manifest(ctx)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestEngine_WithDisabledCache(t *testing.T) {
	engine, _ := seededEngine(t)

	rdb, err := redis.New(context.Background(), &config.Config{})
	require.NoError(t, err)
	engine.WithCache(redis.NewCache(rdb, "spxlab"))

	u, err := engine.HistoricalMembers(context.Background(), contracts.Day(2014, 1, 1), contracts.Day(2018, 12, 31), HistoricalOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "AMD", "YHOO"}, u.Tickers)
	assert.True(t, u.MembershipKnown)
}

func TestEngine_MissingStoreWarnsOnce(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	engine := NewEngine(NewParquetStore(t.TempDir(), "sp500", false), logger.NewWithWriter(&buf, "warn"))

	for _, ticker := range []string{"AAPL", "MSFT", "AMD", "NVDA", "YHOO"} {
		ivs, err := engine.IntervalsFor(ctx, ticker)
		require.NoError(t, err)
		assert.Nil(t, ivs)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Membership store not found")
}

func TestEngine_BuildIDFromIntervalTable(t *testing.T) {
	ctx := context.Background()
	engine, store := seededEngine(t)

	committed, err := engine.Manifest(ctx)
	require.NoError(t, err)
	require.NotNil(t, committed)

	u, err := engine.MembersAsOf(ctx, contracts.Day(2012, 6, 30))
	require.NoError(t, err)
	assert.Equal(t, committed.BuildID, u.BuildID)

	t.Run("manifest drift keeps the interval table id", func(t *testing.T) {
		syn := SynthesizeIntervals(amdLikeRecords(), time.Time{})
		require.NoError(t, store.WriteManifest(ctx, NewManifest("sp500", "drift", 0, syn)))
		require.NoError(t, engine.Reload(ctx))

		u, err := engine.MembersAsOf(ctx, contracts.Day(2012, 6, 30))
		require.NoError(t, err)
		assert.Equal(t, committed.BuildID, u.BuildID)
	})

	t.Run("intervals written outside a build have no id", func(t *testing.T) {
		syn := SynthesizeIntervals(amdLikeRecords(), time.Time{})
		require.NoError(t, store.WriteIntervals(ctx, syn.Intervals))
		require.NoError(t, engine.Reload(ctx))

		u, err := engine.MembersAsOf(ctx, contracts.Day(2012, 6, 30))
		require.NoError(t, err)
		assert.True(t, u.MembershipKnown)
		assert.Empty(t, u.BuildID, "cache stays off without a committed id")
	})
}
