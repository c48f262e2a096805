package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/internal/completeness"
	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s0_data/feed"
	"github.com/wonny/spxlab/internal/s0_data/quality"
	"github.com/wonny/spxlab/internal/s1_universe"
	"github.com/wonny/spxlab/pkg/logger"
)

type staticSource struct {
	symbols []string
	err     error
}

func (s staticSource) CurrentMembers(ctx context.Context) ([]string, error) {
	return s.symbols, s.err
}

type countingReloader struct{ calls int }

func (r *countingReloader) Reload(ctx context.Context) error {
	r.calls++
	return nil
}

func TestMembershipRefreshJob_Run(t *testing.T) {
	ctx := context.Background()
	store := s1_universe.NewParquetStore(t.TempDir(), "sp500", false)
	builder := s1_universe.NewBuilder(store, quality.NewInspector(quality.DefaultConfig()), logger.Nop())
	reloader := &countingReloader{}

	job := NewMembershipRefreshJob(staticSource{symbols: []string{"AAPL", "msft"}}, builder, reloader, logger.Nop())
	job.now = func() time.Time { return contracts.Day(2024, 3, 1) }

	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 1, reloader.calls)

	intervals, err := store.ReadIntervals(ctx)
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.Equal(t, "MSFT", intervals[1].Ticker)
	assert.Equal(t, contracts.Day(2024, 3, 1), intervals[1].StartDate)

	// 다음 날 MSFT 편출
	job.now = func() time.Time { return contracts.Day(2024, 3, 4) }
	job.source = staticSource{symbols: []string{"AAPL"}}
	require.NoError(t, job.Run(ctx))

	intervals, err = store.ReadIntervals(ctx)
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.Equal(t, contracts.Day(2024, 3, 4), intervals[0].EndDate)
	assert.Equal(t, contracts.Day(2024, 3, 1), intervals[1].EndDate)
}

type failingRefresher struct{}

func (failingRefresher) Refresh(ctx context.Context, symbols []string, asOf time.Time, gvkeys *feed.GVKeyMap) (*s1_universe.BuildResult, error) {
	return nil, errors.New("refresh must not run")
}

func TestMembershipRefreshJob_Errors(t *testing.T) {
	ctx := context.Background()

	job := NewMembershipRefreshJob(staticSource{}, failingRefresher{}, nil, logger.Nop())
	assert.ErrorIs(t, job.Run(ctx), ErrNoConstituents)

	boom := errors.New("scrape failed")
	job = NewMembershipRefreshJob(staticSource{err: boom}, failingRefresher{}, nil, logger.Nop())
	assert.ErrorIs(t, job.Run(ctx), boom)

	assert.Equal(t, "membership_refresh", job.Name())
	assert.NotEmpty(t, job.Schedule())
}

type fakeHistorical struct {
	tickers []string
	err     error
}

func (f fakeHistorical) HistoricalMembers(ctx context.Context, start, end time.Time, opts s1_universe.HistoricalOptions) (*contracts.Universe, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &contracts.Universe{Name: "sp500", Tickers: f.tickers, MembershipKnown: true}, nil
}

type recordingRunner struct {
	freqs []contracts.Frequency
}

func (r *recordingRunner) Run(ctx context.Context, tickers []string, window contracts.DateRange, opts completeness.Options) (*completeness.BatchReport, error) {
	r.freqs = append(r.freqs, opts.Frequency)
	return &completeness.BatchReport{
		Window:    window,
		Frequency: opts.Frequency,
		Complete:  len(tickers),
		Errors:    map[string]string{},
	}, nil
}

func TestCompletenessAuditJob_Run(t *testing.T) {
	runner := &recordingRunner{}
	plan := AuditPlan{
		Window:      contracts.NewDateRange(contracts.Day(2014, 1, 1), contracts.Day(2024, 12, 31)),
		Frequencies: []contracts.Frequency{contracts.FrequencyDaily, contracts.FrequencyMonthly},
	}
	job := NewCompletenessAuditJob(fakeHistorical{tickers: []string{"AAPL", "AMD"}}, runner, plan, logger.Nop())

	assert.Nil(t, job.Latest(contracts.FrequencyDaily))
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, plan.Frequencies, runner.freqs)
	report := job.Latest(contracts.FrequencyMonthly)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Complete)
	assert.Nil(t, job.Latest(contracts.FrequencyWeekly))
}

func TestCompletenessAuditJob_StoreMissing(t *testing.T) {
	runner := &recordingRunner{}
	job := NewCompletenessAuditJob(fakeHistorical{err: s1_universe.ErrMembershipUnavailable}, runner, AuditPlan{
		Frequencies: []contracts.Frequency{contracts.FrequencyDaily},
	}, logger.Nop())

	assert.ErrorIs(t, job.Run(context.Background()), s1_universe.ErrMembershipUnavailable)
	assert.Empty(t, runner.freqs)
}
