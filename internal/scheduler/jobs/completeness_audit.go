package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/spxlab/internal/completeness"
	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s1_universe"
	"github.com/wonny/spxlab/pkg/logger"
)

// HistoricalSource lists every ticker that was a member during a window (s1_universe.Engine)
type HistoricalSource interface {
	HistoricalMembers(ctx context.Context, start, end time.Time, opts s1_universe.HistoricalOptions) (*contracts.Universe, error)
}

// BatchChecker runs completeness checks for many tickers (completeness.BatchRunner)
type BatchChecker interface {
	Run(ctx context.Context, tickers []string, window contracts.DateRange, opts completeness.Options) (*completeness.BatchReport, error)
}

// AuditPlan is what the nightly audit checks
type AuditPlan struct {
	Window      contracts.DateRange
	Frequencies []contracts.Frequency
	SpanMode    bool
}

// CompletenessAuditJob checks stored price coverage for all historical members
// and logs which tickers still need fetching
type CompletenessAuditJob struct {
	members HistoricalSource
	runner  BatchChecker
	plan    AuditPlan
	logger  *logger.Logger

	mu     sync.RWMutex
	latest map[contracts.Frequency]*completeness.BatchReport
}

// NewCompletenessAuditJob creates a new audit job
func NewCompletenessAuditJob(members HistoricalSource, runner BatchChecker, plan AuditPlan, log *logger.Logger) *CompletenessAuditJob {
	return &CompletenessAuditJob{
		members: members,
		runner:  runner,
		plan:    plan,
		logger:  log.WithField("job", "completeness_audit"),
		latest:  make(map[contracts.Frequency]*completeness.BatchReport),
	}
}

// Name returns the job name
func (j *CompletenessAuditJob) Name() string {
	return "completeness_audit"
}

// Schedule returns the cron schedule (02:00 daily)
func (j *CompletenessAuditJob) Schedule() string {
	return "0 0 2 * * *"
}

// Run executes the audit for every planned frequency
func (j *CompletenessAuditJob) Run(ctx context.Context) error {
	window := j.plan.Window
	j.logger.WithField("window", window.String()).Info("Starting completeness audit")

	// 저장소 없으면 실패 (현재 구성종목 대체는 감사에 쓰지 않음)
	universe, err := j.members.HistoricalMembers(ctx, window.Start, window.End, s1_universe.HistoricalOptions{})
	if err != nil {
		return fmt.Errorf("historical members: %w", err)
	}

	for _, freq := range j.plan.Frequencies {
		report, err := j.runner.Run(ctx, universe.Tickers, window, completeness.Options{
			Frequency: freq,
			SpanMode:  j.plan.SpanMode,
		})
		if err != nil {
			return fmt.Errorf("audit %s: %w", freq, err)
		}

		j.mu.Lock()
		j.latest[freq] = report
		j.mu.Unlock()

		log := j.logger.WithFields(map[string]interface{}{
			"frequency":   string(freq),
			"tickers":     universe.Count(),
			"complete":    report.Complete,
			"partial":     report.Partial,
			"missing":     report.Missing,
			"errors":      len(report.Errors),
			"needs_fetch": len(report.NeedsFetch()),
			"elapsed":     report.Elapsed,
		})
		if len(report.Errors) > 0 {
			log.Warn("Completeness audit finished with ticker errors")
		} else {
			log.Info("Completeness audit finished")
		}
	}

	return nil
}

// Latest returns the last report for freq, or nil before the first run
func (j *CompletenessAuditJob) Latest(freq contracts.Frequency) *completeness.BatchReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.latest[freq]
}
