package s1_universe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s0_data/feed"
	"github.com/wonny/spxlab/internal/s0_data/quality"
	"github.com/wonny/spxlab/pkg/logger"
)

// ErrEmptyFeed is returned when a build has no usable records
var ErrEmptyFeed = errors.New("membership feed has no records")

// ReportSaver persists quality reports (quality.Repository)
type ReportSaver interface {
	SaveReport(ctx context.Context, report *contracts.MembershipQualityReport) error
}

// Builder turns a raw membership feed into the persisted interval table.
// Every run replaces both tables wholesale.
type Builder struct {
	store     Store
	inspector *quality.Inspector
	reports   ReportSaver
	logger    *logger.Logger
	minDate   time.Time
}

// BuildInput is one ingestion run
type BuildInput struct {
	Feed   *feed.MembershipFeed
	GVKeys *feed.GVKeyMap // optional
	Source string         // feed path or "refresh:<date>"
}

// BuildResult summarizes a finished build
type BuildResult struct {
	Manifest  *Manifest
	Synthesis *Synthesis
	Report    *contracts.MembershipQualityReport
}

// NewBuilder creates a new membership Builder
func NewBuilder(store Store, inspector *quality.Inspector, log *logger.Logger) *Builder {
	return &Builder{
		store:     store,
		inspector: inspector,
		logger:    log.WithField("module", "membership_builder"),
	}
}

// WithReportSaver stores every quality report after a build
func (b *Builder) WithReportSaver(saver ReportSaver) *Builder {
	b.reports = saver
	return b
}

// WithMinDate ignores records before minDate
func (b *Builder) WithMinDate(minDate time.Time) *Builder {
	b.minDate = minDate
	return b
}

// Build synthesizes intervals from the feed, attaches gvkeys, inspects and persists.
// Quality problems are reported, never corrected; they do not fail the build.
// ⭐ SSOT: 일별 레코드 → 구간 테이블 빌드
func (b *Builder) Build(ctx context.Context, in BuildInput) (*BuildResult, error) {
	if in.Feed == nil {
		return nil, ErrEmptyFeed
	}

	records := FilterFrom(in.Feed.Records, b.minDate)
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", in.Source, ErrEmptyFeed)
	}

	syn := SynthesizeIntervals(records, time.Time{})

	var unmapped []string
	if in.GVKeys != nil {
		unmapped = in.GVKeys.Attach(syn.Intervals)
	}

	report := b.inspector.Inspect(quality.Input{
		Universe:         b.store.Universe(),
		Records:          records,
		Calendar:         syn.Calendar,
		Intervals:        syn.Intervals,
		RawRows:          in.Feed.RawRows,
		DroppedRows:      in.Feed.DroppedRows,
		DuplicateRecords: in.Feed.DuplicateRecords,
		Unmapped:         unmapped,
		GVKeysAttached:   in.GVKeys != nil,
	})

	manifest := NewManifest(b.store.Universe(), in.Source, len(records), syn)
	if err := b.store.CommitBuild(ctx, &Build{
		Daily:     records,
		Intervals: syn.Intervals,
		Manifest:  manifest,
	}); err != nil {
		return nil, fmt.Errorf("commit membership build: %w", err)
	}

	log := b.logger.WithFields(map[string]interface{}{
		"universe":  manifest.Universe,
		"build_id":  manifest.BuildID,
		"records":   manifest.DailyRows,
		"intervals": manifest.IntervalRows,
		"tickers":   manifest.Tickers,
		"location":  b.store.Location(),
	})
	if !report.Passed() {
		log.WithFields(map[string]interface{}{
			"conflicts":           len(report.Conflicts),
			"coverage_mismatches": len(report.CoverageMismatches),
		}).Warn("Membership build has quality problems")
	}
	for _, w := range report.Warnings {
		log.Warn(w)
	}
	log.Info("Membership tables rebuilt")

	if b.reports != nil {
		if err := b.reports.SaveReport(ctx, report); err != nil {
			// 리포트 저장 실패는 빌드를 실패시키지 않음
			log.WithError(err).Warn("Failed to save quality report")
		}
	}

	return &BuildResult{Manifest: manifest, Synthesis: syn, Report: report}, nil
}

// Refresh appends today's constituents to the stored daily table and rebuilds
// the interval table from the full accumulated set.
// gvkeys may be nil, in which case identifiers of the previous build are kept.
func (b *Builder) Refresh(ctx context.Context, symbols []string, asOf time.Time, gvkeys *feed.GVKeyMap) (*BuildResult, error) {
	asOf = contracts.TruncateDay(asOf)

	existing, err := b.store.ReadDaily(ctx)
	if err != nil {
		if !errors.Is(err, ErrStoreNotFound) {
			return nil, fmt.Errorf("read daily table: %w", err)
		}
		b.logger.WithField("universe", b.store.Universe()).Warn("No daily table yet, refresh starts a new one")
	}

	if gvkeys == nil {
		gvkeys, err = b.previousGVKeys(ctx)
		if err != nil {
			return nil, err
		}
	}

	today := make([]contracts.MembershipRecord, 0, len(symbols))
	for _, s := range symbols {
		if t := feed.NormalizeTicker(s); t != "" {
			today = append(today, contracts.MembershipRecord{Ticker: t, Date: asOf})
		}
	}

	merged, dups := feed.MergeRecords(existing, today)
	return b.Build(ctx, BuildInput{
		Feed: &feed.MembershipFeed{
			Records:          merged,
			RawRows:          len(symbols),
			DuplicateRecords: dups,
		},
		GVKeys: gvkeys,
		Source: "refresh:" + asOf.Format(contracts.DateLayout),
	})
}

// previousGVKeys rebuilds the identifier map from the stored interval table
func (b *Builder) previousGVKeys(ctx context.Context) (*feed.GVKeyMap, error) {
	intervals, err := b.store.ReadIntervals(ctx)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read interval table: %w", err)
	}

	pairs := make(map[string]int64)
	for _, iv := range intervals {
		if iv.GVKey != nil {
			pairs[iv.Ticker] = *iv.GVKey
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	return feed.NewGVKeyMap(pairs), nil
}
