package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s0_data/quality"
	"github.com/wonny/spxlab/internal/s1_universe"
)

// qualityCmd represents the quality command
var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "저장된 구간 테이블 품질 검사",
	Long: `저장된 일별/구간 테이블을 다시 읽어 품질 검사를 수행합니다.
문제는 보고만 하고 자동 수정하지 않습니다.

--latest 는 마지막 빌드에서 저장한 리포트(Postgres)를 출력합니다.

Example:
  go run ./cmd/spx quality
  go run ./cmd/spx quality --latest --json`,
	RunE: runQuality,
}

var qualityLatest bool

func init() {
	rootCmd.AddCommand(qualityCmd)

	qualityCmd.Flags().BoolVar(&qualityLatest, "latest", false, "show the last saved report instead of re-inspecting")
}

func runQuality(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	var report *contracts.MembershipQualityReport
	if qualityLatest {
		if rt.db == nil {
			return fmt.Errorf("--latest needs DATABASE_URL")
		}
		if report, err = quality.NewRepository(rt.db.Pool).GetLatest(ctx, rt.cfg.Membership.Universe); err != nil {
			return err
		}
	} else if report, err = inspectStore(ctx, rt); err != nil {
		return err
	}

	if jsonOutput {
		return PrintJSON(report)
	}
	PrintHeader("Membership Quality",
		[2]string{"Universe", report.Universe},
		[2]string{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05")},
	)
	printQualitySummary(report)
	return nil
}

// inspectStore re-runs the inspector over the persisted tables
func inspectStore(ctx context.Context, rt *runtime) (*contracts.MembershipQualityReport, error) {
	records, err := rt.store.ReadDaily(ctx)
	if err != nil {
		return nil, fmt.Errorf("read daily table: %w", err)
	}
	intervals, err := rt.store.ReadIntervals(ctx)
	if err != nil {
		return nil, fmt.Errorf("read interval table: %w", err)
	}

	in := quality.Input{
		Universe:  rt.cfg.Membership.Universe,
		Records:   records,
		Calendar:  s1_universe.ObservationCalendar(records),
		Intervals: intervals,
		RawRows:   len(records),
	}

	unmapped := make(map[string]struct{})
	for _, iv := range intervals {
		if iv.GVKey != nil {
			in.GVKeysAttached = true
		} else {
			unmapped[iv.Ticker] = struct{}{}
		}
	}
	if in.GVKeysAttached {
		for t := range unmapped {
			in.Unmapped = append(in.Unmapped, t)
		}
		sort.Strings(in.Unmapped)
	}

	qcfg := quality.DefaultConfig()
	if rt.research != nil {
		qcfg = rt.research.Quality
	}
	return quality.NewInspector(qcfg).Inspect(in), nil
}

func printQualitySummary(r *contracts.MembershipQualityReport) {
	PrintKeyValue("Records", fmt.Sprint(r.TotalRecords), 14)
	PrintKeyValue("Tickers", fmt.Sprint(r.TotalTickers), 14)
	PrintKeyValue("Intervals", fmt.Sprint(r.TotalIntervals), 14)
	PrintKeyValue("Re-added", fmt.Sprint(len(r.ReaddedTickers)), 14)
	PrintKeyValue("GVKey cover", fmt.Sprintf("%.1f%%", r.GVKeyCoverage*100), 14)
	PrintSeparator()

	if r.Passed() {
		PrintSuccess("No interval conflicts, daily ↔ interval round trip verified")
	} else {
		PrintError(fmt.Sprintf("%d conflicts, %d coverage mismatches", len(r.Conflicts), len(r.CoverageMismatches)))
		for _, c := range r.Conflicts {
			fmt.Printf("   • %s %s: %s ~ %s / %s ~ %s\n", c.Ticker, c.Kind,
				c.First.StartDate.Format(contracts.DateLayout), c.First.EndDate.Format(contracts.DateLayout),
				c.Second.StartDate.Format(contracts.DateLayout), c.Second.EndDate.Format(contracts.DateLayout))
		}
		PrintList(r.CoverageMismatches)
	}
	for _, w := range r.Warnings {
		PrintWarning(w)
	}
}
