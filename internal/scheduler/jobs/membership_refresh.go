package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s0_data/feed"
	"github.com/wonny/spxlab/internal/s1_universe"
	"github.com/wonny/spxlab/pkg/logger"
)

// ErrNoConstituents is returned when the current source answers with an empty list
var ErrNoConstituents = errors.New("current constituents source returned no symbols")

// Refresher appends today's snapshot and rebuilds intervals (s1_universe.Builder)
type Refresher interface {
	Refresh(ctx context.Context, symbols []string, asOf time.Time, gvkeys *feed.GVKeyMap) (*s1_universe.BuildResult, error)
}

// Reloader drops cached state after a rebuild (s1_universe.Engine)
type Reloader interface {
	Reload(ctx context.Context) error
}

// MembershipRefreshJob appends today's constituents to the membership store
// ⭐ SSOT: 구성종목 갱신 스케줄은 이 Job에서만
type MembershipRefreshJob struct {
	source  contracts.CurrentMembersSource
	builder Refresher
	engine  Reloader
	logger  *logger.Logger
	now     func() time.Time
}

// NewMembershipRefreshJob creates a new refresh job; engine may be nil
func NewMembershipRefreshJob(source contracts.CurrentMembersSource, builder Refresher, engine Reloader, log *logger.Logger) *MembershipRefreshJob {
	return &MembershipRefreshJob{
		source:  source,
		builder: builder,
		engine:  engine,
		logger:  log.WithField("job", "membership_refresh"),
		now:     contracts.Today,
	}
}

// Name returns the job name
func (j *MembershipRefreshJob) Name() string {
	return "membership_refresh"
}

// Schedule returns the cron schedule (weekdays 17:30 New York, after the close)
func (j *MembershipRefreshJob) Schedule() string {
	return "0 30 17 * * MON-FRI"
}

// Run executes the refresh
func (j *MembershipRefreshJob) Run(ctx context.Context) error {
	asOf := j.now()
	j.logger.WithField("as_of", asOf.Format(contracts.DateLayout)).Info("Starting scheduled membership refresh")

	symbols, err := j.source.CurrentMembers(ctx)
	if err != nil {
		return fmt.Errorf("fetch current constituents: %w", err)
	}
	// 빈 응답으로 덮어쓰면 오늘 전 종목이 편출 처리됨
	if len(symbols) == 0 {
		return ErrNoConstituents
	}

	res, err := j.builder.Refresh(ctx, symbols, asOf, nil)
	if err != nil {
		return fmt.Errorf("refresh membership: %w", err)
	}

	if j.engine != nil {
		if err := j.engine.Reload(ctx); err != nil {
			return fmt.Errorf("reload engine: %w", err)
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"build_id":  res.Manifest.BuildID,
		"symbols":   len(symbols),
		"intervals": res.Manifest.IntervalRows,
		"warnings":  len(res.Report.Warnings),
	}).Info("Membership refreshed successfully")

	return nil
}
