package completeness

import (
	"context"
	"fmt"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/pkg/logger"
)

// IntervalSource supplies a ticker's membership intervals (s1_universe.Engine)
type IntervalSource interface {
	IntervalsFor(ctx context.Context, ticker string) ([]contracts.MembershipInterval, error)
}

// Options selects frequency and span mode for a check
type Options struct {
	Frequency contracts.Frequency
	SpanMode  bool // opt-in: 멤버십 갭 무시
}

// Checker answers "what must be fetched for this ticker" using membership
// intervals and the islands already in the price store. It never fetches.
type Checker struct {
	intervals  IntervalSource
	ranges     contracts.RangeSetProvider
	tolerances Tolerances
	metrics    *Metrics
	logger     *logger.Logger
}

// NewChecker creates a new completeness Checker
func NewChecker(intervals IntervalSource, ranges contracts.RangeSetProvider, tolerances Tolerances, log *logger.Logger) *Checker {
	return &Checker{
		intervals:  intervals,
		ranges:     ranges,
		tolerances: tolerances,
		logger:     log.WithField("module", "completeness"),
	}
}

// WithMetrics records every decision on m
func (c *Checker) WithMetrics(m *Metrics) *Checker {
	c.metrics = m
	return c
}

// Check evaluates ticker against window using its own stored data
func (c *Checker) Check(ctx context.Context, ticker string, window contracts.DateRange, opts Options) (contracts.CompletenessResult, error) {
	res, _, err := c.check(ctx, ticker, ticker, window, opts)
	return res, err
}

// CheckAs evaluates ticker's membership against the data stored under dataSymbol
// (a renamed successor, for example)
func (c *Checker) CheckAs(ctx context.Context, ticker, dataSymbol string, window contracts.DateRange, opts Options) (contracts.CompletenessResult, error) {
	res, _, err := c.check(ctx, ticker, dataSymbol, window, opts)
	return res, err
}

// check also reports whether dataSymbol had any stored data at all
func (c *Checker) check(ctx context.Context, ticker, dataSymbol string, window contracts.DateRange, opts Options) (contracts.CompletenessResult, bool, error) {
	tol, err := c.tolerances.For(opts.Frequency)
	if err != nil {
		return nil, false, err
	}
	ticker, dataSymbol = contracts.NormalizeTicker(ticker), contracts.NormalizeTicker(dataSymbol)

	intervals, err := c.intervals.IntervalsFor(ctx, ticker)
	if err != nil {
		return nil, false, fmt.Errorf("intervals for %s: %w", ticker, err)
	}

	actual, err := c.ranges.GetDataRanges(ctx, dataSymbol, opts.Frequency)
	if err != nil {
		return nil, false, fmt.Errorf("data ranges for %s: %w", dataSymbol, err)
	}

	res, err := Evaluate(Request{
		Ticker:    ticker,
		Intervals: intervals,
		Window:    window,
		Actual:    actual,
		Frequency: opts.Frequency,
		Tolerance: tol,
		SpanMode:  opts.SpanMode,
	})
	if err != nil {
		return nil, false, err
	}

	c.metrics.ObserveResult(opts.Frequency, res)
	if len(intervals) == 0 {
		c.logger.WithField("ticker", ticker).Debug("No membership intervals, checked full research window")
	}
	return res, len(actual) > 0, nil
}
