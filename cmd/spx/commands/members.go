package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s1_universe"
)

// membersCmd represents the members command
var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "특정 시점 구성종목 조회",
	Long: `start_date <= date <= end_date 인 모든 티커를 조회합니다.
저장소가 없으면 membership_known=false 로 빈 결과를 반환합니다.

Example:
  go run ./cmd/spx members --date 2020-06-30
  go run ./cmd/spx members --date 2008-09-15 --json`,
	RunE: runMembers,
}

// historicalCmd represents the historical command
var historicalCmd = &cobra.Command{
	Use:   "historical",
	Short: "기간 중 한 번이라도 편입된 종목 조회",
	Long: `연구 기간과 겹치는 구간이 하나라도 있는 모든 티커를 조회합니다.
생존 편향 없는 유니버스입니다.

저장소가 없으면 실패합니다. --fallback (또는 HISTORICAL_FALLBACK=true) 지정 시
현재 구성종목으로 대체하며 membership_known=false 로 표시됩니다.

Example:
  go run ./cmd/spx historical --start 2014-01-01 --end 2024-12-31
  go run ./cmd/spx historical --research config/research/sp500_default.yaml`,
	RunE: runHistorical,
}

var (
	membersDate        string
	historicalStart    string
	historicalEnd      string
	historicalFallback bool
)

func init() {
	rootCmd.AddCommand(membersCmd)
	rootCmd.AddCommand(historicalCmd)

	membersCmd.Flags().StringVar(&membersDate, "date", "", "as-of date YYYY-MM-DD (default: today)")

	historicalCmd.Flags().StringVar(&historicalStart, "start", "", "period start YYYY-MM-DD (default: research.start)")
	historicalCmd.Flags().StringVar(&historicalEnd, "end", "", "period end YYYY-MM-DD (default: research.end)")
	historicalCmd.Flags().BoolVar(&historicalFallback, "fallback", false, "use current constituents when the store is missing")
}

func runMembers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var date time.Time
	if membersDate != "" {
		d, err := contracts.ParseDate(membersDate)
		if err != nil {
			return fmt.Errorf("--date: %w", err)
		}
		date = d
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	universe, err := rt.Engine().MembersAsOf(ctx, date)
	if err != nil {
		return err
	}
	return printUniverse("Members as of "+universe.Date.Format(contracts.DateLayout), universe)
}

func runHistorical(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	window, err := researchWindow(rt, historicalStart, historicalEnd)
	if err != nil {
		return err
	}

	universe, err := rt.Engine().HistoricalMembers(ctx, window.Start, window.End, s1_universe.HistoricalOptions{
		AllowCurrentFallback: historicalFallback || rt.HistoricalFallback(),
	})
	if err != nil {
		return err
	}
	return printUniverse("Historical members "+window.String(), universe)
}

// researchWindow resolves --start/--end against the research config
func researchWindow(rt *runtime, start, end string) (contracts.DateRange, error) {
	if rt.research != nil {
		w := rt.research.Window()
		if start == "" {
			start = w.Start.Format(contracts.DateLayout)
		}
		if end == "" {
			end = w.End.Format(contracts.DateLayout)
		}
	}
	if start == "" || end == "" {
		return contracts.DateRange{}, fmt.Errorf("--start and --end are required without a research config")
	}

	s, err := contracts.ParseDate(start)
	if err != nil {
		return contracts.DateRange{}, fmt.Errorf("--start: %w", err)
	}
	e, err := contracts.ParseDate(end)
	if err != nil {
		return contracts.DateRange{}, fmt.Errorf("--end: %w", err)
	}
	if s.After(e) {
		return contracts.DateRange{}, fmt.Errorf("--start %s is after --end %s", start, end)
	}
	return contracts.NewDateRange(s, e), nil
}

func printUniverse(title string, u *contracts.Universe) error {
	if jsonOutput {
		return PrintJSON(u)
	}

	PrintHeader(title,
		[2]string{"Universe", u.Name},
		[2]string{"Source", u.Source},
		[2]string{"Build", u.BuildID},
		[2]string{"Count", fmt.Sprint(u.Count())},
	)
	if !u.MembershipKnown {
		PrintWarning("Membership unknown: result is not point-in-time (survivorship bias)")
	}
	PrintColumns(u.Tickers, 10)
	return nil
}
