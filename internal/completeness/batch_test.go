package completeness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/tickers"
	"github.com/wonny/spxlab/pkg/logger"
)

func batchFixture() (*Checker, *tickers.Resolver) {
	intervals := staticIntervals{
		"AMD":   amdIntervals(),
		"CBS":   {{Ticker: "CBS", StartDate: d(2006, 1, 3), EndDate: d(2019, 12, 4)}},
		"LIFE":  {{Ticker: "LIFE", StartDate: d(2009, 1, 2), EndDate: d(2014, 2, 3)}},
		"LOOPA": {{Ticker: "LOOPA", StartDate: d(2015, 1, 2), EndDate: d(2020, 1, 2)}},
	}
	ranges := StaticRanges{
		"AMD":  {rng(2017, 3, 20, 2024, 12, 31)},
		"PARA": {rng(2005, 1, 3, 2024, 12, 31)},
	}

	resolver := tickers.NewDefaultResolver(
		contracts.TickerTransition{Old: "LOOPA", New: "LOOPB"},
		contracts.TickerTransition{Old: "LOOPB", New: "LOOPA"},
	)
	return NewChecker(intervals, ranges, nil, logger.Nop()), resolver
}

func TestBatchRunner_Run(t *testing.T) {
	checker, resolver := batchFixture()
	runner := NewBatchRunner(checker, 4, logger.Nop()).WithResolver(resolver)

	report, err := runner.Run(context.Background(),
		[]string{"AMD", "CBS", "LIFE", "LOOPA", "BROKEN", "TESTSYM", "AMD"},
		researchWindow, Options{Frequency: contracts.FrequencyDaily})
	require.NoError(t, err)

	// per-ticker failures are collected, not fatal
	require.Len(t, report.Errors, 2)
	assert.Contains(t, report.Errors, "BROKEN")
	assert.Contains(t, report.Errors["LOOPA"], "circular reference")

	require.Len(t, report.Outcomes, 4)
	byTicker := make(map[string]Outcome)
	for _, o := range report.Outcomes {
		byTicker[o.Ticker] = o
	}
	assert.Equal(t, []string{"AMD", "CBS", "LIFE", "TESTSYM"}, []string{
		report.Outcomes[0].Ticker, report.Outcomes[1].Ticker, report.Outcomes[2].Ticker, report.Outcomes[3].Ticker,
	})

	// renamed ticker checked under its successor's data
	cbs := byTicker["CBS"]
	assert.Equal(t, "PARA", cbs.ResolvedSymbol)
	assert.Equal(t, contracts.StatusComplete, cbs.Result.OverallStatus())

	// delisted: nothing to resolve to, stays missing
	life := byTicker["LIFE"]
	assert.Empty(t, life.ResolvedSymbol)
	assert.Equal(t, contracts.StatusMissing, life.Result.OverallStatus())

	amd := byTicker["AMD"]
	assert.Empty(t, amd.ResolvedSymbol)
	assert.Equal(t, contracts.StatusComplete, amd.Result.OverallStatus())

	unknown := byTicker["TESTSYM"].Result.(*contracts.SinglePeriodResult)
	assert.Equal(t, contracts.ReasonMembershipUnknown, unknown.Reason)

	assert.Equal(t, 2, report.Complete)
	assert.Equal(t, 2, report.Missing)
	assert.Len(t, report.NeedsFetch(), 2)
}

func TestBatchRunner_WithoutResolver(t *testing.T) {
	checker, _ := batchFixture()
	runner := NewBatchRunner(checker, 0, logger.Nop())

	report, err := runner.Run(context.Background(), []string{"CBS", "LOOPA"}, researchWindow,
		Options{Frequency: contracts.FrequencyDaily})
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 2, report.Missing)
}

func TestBatchRunner_InvalidInput(t *testing.T) {
	checker, _ := batchFixture()
	runner := NewBatchRunner(checker, 2, logger.Nop())

	_, err := runner.Run(context.Background(), []string{"AMD"}, rng(2024, 2, 1, 2024, 1, 1), Options{Frequency: contracts.FrequencyDaily})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = runner.Run(context.Background(), []string{"AMD"}, researchWindow, Options{Frequency: "hourly"})
	assert.Error(t, err)
}

func TestBatchRunner_CancelledContext(t *testing.T) {
	checker, _ := batchFixture()
	runner := NewBatchRunner(checker, 2, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := runner.Run(ctx, []string{"AMD", "CBS"}, researchWindow, Options{Frequency: contracts.FrequencyDaily})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Outcomes)
}
