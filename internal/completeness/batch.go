package completeness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/pkg/logger"
)

// Resolver maps an old symbol to its current one (tickers.Resolver)
type Resolver interface {
	Resolve(symbol string) (current string, ok bool, err error)
}

// Outcome is one ticker's batch result
type Outcome struct {
	Ticker         string                       `json:"ticker"`
	ResolvedSymbol string                       `json:"resolved_symbol,omitempty"` // 데이터를 찾은 심볼 (티커 변경 시)
	Result         contracts.CompletenessResult `json:"result"`
}

// BatchReport collects a batch run. Failures land in Errors and never abort the run.
type BatchReport struct {
	Window    contracts.DateRange `json:"window"`
	Frequency contracts.Frequency `json:"frequency"`
	SpanMode  bool                `json:"span_mode"`
	Outcomes  []Outcome           `json:"outcomes"`
	Errors    map[string]string   `json:"errors"`
	Complete  int                 `json:"complete"`
	Partial   int                 `json:"partial"`
	Missing   int                 `json:"missing"`
	Elapsed   time.Duration       `json:"elapsed_ns"`
}

// NeedsFetch returns the outcomes that recommend at least one fetch window
func (r *BatchReport) NeedsFetch() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if len(o.Result.FetchWindows()) > 0 {
			out = append(out, o)
		}
	}
	return out
}

// BatchRunner checks many tickers concurrently on a bounded worker pool
type BatchRunner struct {
	checker  *Checker
	resolver Resolver
	workers  int
	logger   *logger.Logger
}

// NewBatchRunner creates a runner with the given pool size (minimum 1)
func NewBatchRunner(checker *Checker, workers int, log *logger.Logger) *BatchRunner {
	if workers < 1 {
		workers = 1
	}
	return &BatchRunner{
		checker: checker,
		workers: workers,
		logger:  log.WithField("module", "completeness_batch"),
	}
}

// WithResolver enables the identity fallback: a ticker with no stored data is
// retried under its resolved current symbol
func (b *BatchRunner) WithResolver(r Resolver) *BatchRunner {
	b.resolver = r
	return b
}

// Run checks every ticker against window.
// Only an invalid window or a cancelled context returns an error; in the latter
// case the partial report is returned as well.
// ⭐ SSOT: 배치 완결성 검사 (종목별 오류는 Errors로)
func (b *BatchRunner) Run(ctx context.Context, tickers []string, window contracts.DateRange, opts Options) (*BatchReport, error) {
	window = contracts.NewDateRange(window.Start, window.End)
	if !window.Valid() {
		return nil, fmt.Errorf("research window %s: %w", window, ErrInvalidRange)
	}
	if _, err := b.checker.tolerances.For(opts.Frequency); err != nil {
		return nil, err
	}

	started := time.Now()
	outcomes := xsync.NewMap[string, Outcome]()
	failures := xsync.NewMap[string, string]()

	queueSize := len(tickers)
	if queueSize < 16 {
		queueSize = 16
	}
	pool := pond.NewPool(b.workers, pond.WithQueueSize(queueSize))
	defer pool.StopAndWait()

	group := pool.NewGroupContext(ctx)
	groupCtx := group.Context()

	for _, ticker := range dedup(tickers) {
		ticker := ticker
		group.Submit(func() {
			if err := groupCtx.Err(); err != nil {
				return
			}

			outcome, err := b.checkOne(groupCtx, ticker, window, opts)
			if err != nil {
				b.checker.metrics.ObserveError()
				failures.Store(ticker, err.Error())
				b.logger.WithError(err).WithField("ticker", ticker).Warn("Completeness check failed")
				return
			}
			outcomes.Store(ticker, outcome)
		})
	}

	waitErr := group.Wait()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) && !errors.Is(waitErr, pond.ErrGroupStopped) {
		b.logger.WithError(waitErr).Warn("Some completeness tasks failed")
	}

	report := &BatchReport{
		Window:    window,
		Frequency: opts.Frequency,
		SpanMode:  opts.SpanMode,
		Outcomes:  make([]Outcome, 0, outcomes.Size()),
		Errors:    make(map[string]string),
	}
	outcomes.Range(func(_ string, o Outcome) bool {
		report.Outcomes = append(report.Outcomes, o)
		switch o.Result.OverallStatus() {
		case contracts.StatusComplete:
			report.Complete++
		case contracts.StatusPartial:
			report.Partial++
		case contracts.StatusMissing:
			report.Missing++
		}
		return true
	})
	failures.Range(func(ticker, msg string) bool {
		report.Errors[ticker] = msg
		return true
	})
	sort.Slice(report.Outcomes, func(i, j int) bool { return report.Outcomes[i].Ticker < report.Outcomes[j].Ticker })

	report.Elapsed = time.Since(started)
	b.checker.metrics.ObserveBatch(len(tickers), report.Elapsed)

	b.logger.WithFields(map[string]interface{}{
		"tickers":  len(tickers),
		"complete": report.Complete,
		"partial":  report.Partial,
		"missing":  report.Missing,
		"errors":   len(report.Errors),
		"elapsed":  report.Elapsed.String(),
	}).Info("Completeness batch finished")

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// checkOne runs the gap-aware check, then the identity fallback when the
// ticker has no stored data under its own symbol
func (b *BatchRunner) checkOne(ctx context.Context, ticker string, window contracts.DateRange, opts Options) (Outcome, error) {
	res, hasData, err := b.checker.check(ctx, ticker, ticker, window, opts)
	if err != nil {
		return Outcome{}, err
	}
	out := Outcome{Ticker: ticker, Result: res}

	if hasData || b.resolver == nil || len(res.FetchWindows()) == 0 {
		return out, nil
	}

	current, ok, err := b.resolver.Resolve(ticker)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve %s: %w", ticker, err)
	}
	if !ok || current == ticker {
		return out, nil
	}

	resolved, hasResolvedData, err := b.checker.check(ctx, ticker, current, window, opts)
	if err != nil {
		return Outcome{}, err
	}
	if !hasResolvedData {
		return out, nil
	}

	b.checker.metrics.ObserveIdentityFallback()
	b.logger.WithFields(map[string]interface{}{
		"ticker":   ticker,
		"resolved": current,
	}).Debug("Checked under resolved symbol")
	return Outcome{Ticker: ticker, ResolvedSymbol: current, Result: resolved}, nil
}

func dedup(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
