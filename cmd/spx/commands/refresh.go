package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/scheduler/jobs"
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "오늘 구성종목을 스크래핑해 일별 테이블에 추가",
	Long: `현재 구성종목 페이지를 스크래핑해 오늘 날짜로 일별 테이블에 추가하고
누적된 일별 테이블 전체로 구간 테이블을 다시 합성합니다.
이전 빌드의 gvkey 는 유지됩니다.

스케줄러의 membership_refresh 작업과 같은 동작입니다.

Example:
  go run ./cmd/spx refresh
  go run ./cmd/spx refresh --dry-run`,
	RunE: runRefresh,
}

var refreshDryRun bool

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().BoolVar(&refreshDryRun, "dry-run", false, "print today's constituents without writing")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	source := rt.Constituents()

	if refreshDryRun {
		snap, err := source.FetchSnapshot(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return PrintJSON(snap)
		}
		PrintHeader("Current constituents",
			[2]string{"As of", snap.AsOf.Format(contracts.DateLayout)},
			[2]string{"Source", snap.Source},
			[2]string{"Count", fmt.Sprint(len(snap.Constituents))},
		)
		PrintColumns(snap.Symbols(), 10)
		return nil
	}

	builder, err := rt.Builder(ctx)
	if err != nil {
		return err
	}

	job := jobs.NewMembershipRefreshJob(source, builder, rt.Engine(), rt.log)
	if err := job.Run(ctx); err != nil {
		return err
	}

	manifest, err := rt.Engine().Manifest(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return PrintJSON(manifest)
	}
	PrintSuccess(fmt.Sprintf("Refreshed %s: build %s, %d intervals, calendar ends %s",
		manifest.Universe, manifest.BuildID, manifest.IntervalRows, manifest.CalendarEnd.Format(contracts.DateLayout)))
	return nil
}
