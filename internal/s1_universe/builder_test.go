package s1_universe

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s0_data/feed"
	"github.com/wonny/spxlab/internal/s0_data/quality"
	"github.com/wonny/spxlab/pkg/logger"
)

const sampleFeed = `date,tickers
2024-01-02,"AAPL,AMD,MSFT"
2024-01-03,"AAPL,AMD,MSFT"
2024-01-04,"AAPL,MSFT"
2024-01-05,"AAPL,AMD,MSFT"
`

type recordingSaver struct {
	reports []*contracts.MembershipQualityReport
	err     error
}

func (s *recordingSaver) SaveReport(ctx context.Context, report *contracts.MembershipQualityReport) error {
	s.reports = append(s.reports, report)
	return s.err
}

func newTestBuilder(t *testing.T) (*Builder, *ParquetStore) {
	t.Helper()
	store := NewParquetStore(t.TempDir(), "sp500", true)
	return NewBuilder(store, quality.NewInspector(quality.DefaultConfig()), logger.Nop()), store
}

func TestBuilder_Build(t *testing.T) {
	ctx := context.Background()
	builder, store := newTestBuilder(t)

	saver := &recordingSaver{}
	builder.WithReportSaver(saver)

	raw, err := feed.ParseMembership(strings.NewReader(sampleFeed))
	require.NoError(t, err)

	gvkeys := feed.NewGVKeyMap(map[string]int64{"AAPL": 1690, "MSFT": 12141})

	result, err := builder.Build(ctx, BuildInput{Feed: raw, GVKeys: gvkeys, Source: "sample.csv"})
	require.NoError(t, err)

	assert.Equal(t, 11, result.Manifest.DailyRows)
	assert.Equal(t, 4, result.Manifest.IntervalRows)
	assert.Equal(t, 3, result.Manifest.Tickers)
	assert.Equal(t, "sample.csv", result.Manifest.Source)

	report := result.Report
	assert.True(t, report.Passed())
	assert.Equal(t, []string{"AMD"}, report.ReaddedTickers)
	assert.Equal(t, []string{"AMD"}, report.UnmappedTickers)
	require.Len(t, saver.reports, 1)

	// tables persisted
	intervals, err := store.ReadIntervals(ctx)
	require.NoError(t, err)
	require.Len(t, intervals, 4)
	require.NotNil(t, intervals[0].GVKey)
	assert.Equal(t, int64(1690), *intervals[0].GVKey)

	manifest, err := store.ReadManifest(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Manifest.BuildID, manifest.BuildID)

	// the interval table carries the same build id as the manifest
	snap, err := store.ReadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.Manifest.BuildID, snap.BuildID)
}

func TestBuilder_Build_Empty(t *testing.T) {
	builder, _ := newTestBuilder(t)

	_, err := builder.Build(context.Background(), BuildInput{Feed: &feed.MembershipFeed{}})
	assert.ErrorIs(t, err, ErrEmptyFeed)

	_, err = builder.Build(context.Background(), BuildInput{})
	assert.ErrorIs(t, err, ErrEmptyFeed)
}

func TestBuilder_Build_ReportSaveFailureIsNotFatal(t *testing.T) {
	builder, _ := newTestBuilder(t)
	builder.WithReportSaver(&recordingSaver{err: errors.New("db down")})

	raw, err := feed.ParseMembership(strings.NewReader(sampleFeed))
	require.NoError(t, err)

	_, err = builder.Build(context.Background(), BuildInput{Feed: raw, Source: "sample.csv"})
	assert.NoError(t, err)
}

func TestBuilder_Refresh(t *testing.T) {
	ctx := context.Background()
	builder, store := newTestBuilder(t)

	raw, err := feed.ParseMembership(strings.NewReader(sampleFeed))
	require.NoError(t, err)
	first, err := builder.Build(ctx, BuildInput{
		Feed:   raw,
		GVKeys: feed.NewGVKeyMap(map[string]int64{"AAPL": 1690}),
		Source: "sample.csv",
	})
	require.NoError(t, err)

	// MSFT dropped, NVDA added on the next snapshot
	result, err := builder.Refresh(ctx, []string{"aapl", "AMD", "nvda", " "}, contracts.Day(2024, 1, 8), nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.Manifest.BuildID, result.Manifest.BuildID)
	assert.Equal(t, "refresh:2024-01-08", result.Manifest.Source)

	groups := contracts.GroupByTicker(result.Synthesis.Intervals)
	require.Len(t, groups["MSFT"], 1)
	assert.Equal(t, contracts.Day(2024, 1, 5), groups["MSFT"][0].EndDate)
	require.Len(t, groups["NVDA"], 1)
	assert.Equal(t, contracts.Day(2024, 1, 8), groups["NVDA"][0].StartDate)
	require.Len(t, groups["AAPL"], 1)
	assert.Equal(t, contracts.Day(2024, 1, 8), groups["AAPL"][0].EndDate)

	// identifiers of the previous build survive the refresh
	require.NotNil(t, groups["AAPL"][0].GVKey)
	assert.Equal(t, int64(1690), *groups["AAPL"][0].GVKey)

	daily, err := store.ReadDaily(ctx)
	require.NoError(t, err)
	assert.Len(t, daily, 14)
}

func TestBuilder_Refresh_NoStore(t *testing.T) {
	builder, _ := newTestBuilder(t)

	result, err := builder.Refresh(context.Background(), []string{"AAPL"}, contracts.Day(2024, 1, 8), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Manifest.IntervalRows)
}
