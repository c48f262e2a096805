package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/researchconfig"
	"github.com/wonny/spxlab/internal/s0_data/feed"
	"github.com/wonny/spxlab/internal/s1_universe"
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "구성종목 피드로 구간 테이블 생성",
	Long: `원시 구성종목 피드(date, tickers)를 일별 테이블로 펼치고
연속 구간(ticker, start_date, end_date)으로 합성해 저장합니다.

이 명령어는:
- 피드 파싱 (날짜 형식 자동 인식, 중복 제거)
- 구간 합성 (관측 캘린더 기준)
- gvkey 식별자 조인 (선택)
- 품질 검사 (겹침/인접 충돌, 왕복 검증, gvkey 커버리지)
- 기존 테이블 .bak 백업 후 교체

Example:
  go run ./cmd/spx build --feed data/raw/sp500_membership.csv
  go run ./cmd/spx build --feed raw.csv --gvkey gvkey.csv
  go run ./cmd/spx build --research config/research/sp500_default.yaml`,
	RunE: runBuild,
}

var (
	buildFeed  string
	buildGVKey string
)

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVar(&buildFeed, "feed", "", "membership feed CSV (default: research feeds.membership_csv)")
	buildCmd.Flags().StringVar(&buildGVKey, "gvkey", "", "ticker→gvkey CSV (optional)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	started := time.Now()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	feedPath, gvkeyPath := buildFeed, buildGVKey
	if rt.research != nil {
		if feedPath == "" {
			feedPath = rt.research.Feeds.MembershipCSV
		}
		if gvkeyPath == "" {
			gvkeyPath = rt.research.Feeds.GVKeyCSV
		}
	}
	if feedPath == "" {
		return fmt.Errorf("--feed is required without a research config")
	}

	PrintHeader("Membership Build",
		[2]string{"Universe", rt.cfg.Membership.Universe},
		[2]string{"Feed", feedPath},
		[2]string{"Store", rt.store.Location()},
	)

	membership, err := feed.ReadMembershipFile(feedPath)
	if err != nil {
		return err
	}
	PrintInfo(fmt.Sprintf("Parsed %d raw rows → %d records (%d dropped, %d duplicates)",
		membership.RawRows, len(membership.Records), membership.DroppedRows, membership.DuplicateRecords))

	var gvkeys *feed.GVKeyMap
	if gvkeyPath != "" {
		if gvkeys, err = feed.ReadGVKeyFile(gvkeyPath); err != nil {
			return err
		}
		PrintInfo(fmt.Sprintf("Loaded %d gvkey mappings", gvkeys.Len()))
	}

	builder, err := rt.Builder(ctx)
	if err != nil {
		return err
	}
	res, err := builder.Build(ctx, s1_universe.BuildInput{Feed: membership, GVKeys: gvkeys, Source: feedPath})
	if err != nil {
		return err
	}

	// 어떤 연구 설정으로 만든 빌드인지 기록
	var snapshot *researchconfig.RunSnapshot
	if rt.research != nil {
		if snapshot, err = researchconfig.NewRunSnapshot(rt.research, rt.yaml, res.Manifest.BuildID); err != nil {
			return err
		}
		rt.log.WithFields(map[string]interface{}{
			"build_id":    snapshot.BuildID,
			"research_id": snapshot.ResearchID,
			"config_hash": snapshot.ConfigHash,
		}).Info("Research config snapshot")
	}

	if jsonOutput {
		return PrintJSON(map[string]interface{}{
			"manifest": res.Manifest,
			"quality":  res.Report,
			"research": snapshot,
		})
	}
	printBuildResult(res)
	if snapshot != nil {
		PrintKeyValue("Config hash", snapshot.ConfigHash[:12], 14)
	}
	PrintSuccess(fmt.Sprintf("Build %s completed in %.2fs", res.Manifest.BuildID, time.Since(started).Seconds()))
	return nil
}

func printBuildResult(res *s1_universe.BuildResult) {
	m := res.Manifest
	PrintSeparator()
	PrintKeyValue("Build ID", m.BuildID, 14)
	PrintKeyValue("Daily rows", fmt.Sprint(m.DailyRows), 14)
	PrintKeyValue("Intervals", fmt.Sprint(m.IntervalRows), 14)
	PrintKeyValue("Tickers", fmt.Sprint(m.Tickers), 14)
	PrintKeyValue("Calendar", fmt.Sprintf("%s ~ %s (%d days)",
		m.CalendarStart.Format(contracts.DateLayout), m.CalendarEnd.Format(contracts.DateLayout), m.CalendarDays), 14)
	printQualitySummary(res.Report)
}
