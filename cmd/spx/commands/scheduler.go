package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/completeness"
	"github.com/wonny/spxlab/internal/scheduler"
	"github.com/wonny/spxlab/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/spx scheduler start --research config/research/sp500_default.yaml
  go run ./cmd/spx scheduler list
  go run ./cmd/spx scheduler run membership_refresh`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업 (America/New_York):
- membership_refresh: 평일 17:30 (장 마감 후 구성종목 갱신)
- completeness_audit: 매일 02:00 (기간 구성종목 전체 완결성 검사)
  research config 와 DATABASE_URL 이 있을 때만 등록

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := initScheduler(ctx, rt)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	PrintSuccess("Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	printJobStats(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := initScheduler(ctx, rt)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	if jsonOutput {
		return PrintJSON(sched.Stats())
	}
	printJobStats(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	jobName := args[0]

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched, err := initScheduler(ctx, rt)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	PrintInfo("Running job: " + jobName)
	result, err := sched.RunSync(ctx, jobName)
	if err != nil {
		return err
	}

	if jsonOutput {
		return PrintJSON(result)
	}
	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %d attempts: %s", jobName, result.Attempts, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, result.Duration))
	return nil
}

func printJobStats(sched *scheduler.Scheduler) {
	stats := sched.Stats()
	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		stat := stats[name]
		fmt.Printf("📊 %s\n", name)
		fmt.Printf("   Schedule: %s\n", stat.Schedule)
		if stat.NextRun != nil {
			fmt.Printf("   Next Run: %s\n", stat.NextRun.Format("2006-01-02 15:04:05 MST"))
		}
	}
}

func initScheduler(ctx context.Context, rt *runtime) (*scheduler.Scheduler, error) {
	log := rt.log
	sched := scheduler.New(log)

	builder, err := rt.Builder(ctx)
	if err != nil {
		return nil, err
	}
	engine := rt.Engine()

	if err := sched.AddJob(jobs.NewMembershipRefreshJob(rt.Constituents(), builder, engine, log)); err != nil {
		return nil, err
	}

	// 감사 작업은 연구 기간과 가격 저장소가 모두 있어야 함
	if rt.research == nil {
		log.Warn("No research config, completeness_audit not registered")
		return sched, nil
	}
	ranges, err := rt.PriceRanges(ctx)
	if err != nil {
		log.WithError(err).Warn("completeness_audit not registered")
		return sched, nil
	}

	runner := completeness.NewBatchRunner(rt.Checker(ranges), rt.Workers(), log)
	if rt.research.Completeness.IdentityFallback {
		resolver, err := rt.Resolver()
		if err != nil {
			return nil, err
		}
		runner = runner.WithResolver(resolver)
	}

	plan := jobs.AuditPlan{
		Window:      rt.research.Window(),
		Frequencies: rt.research.FrequencyList(),
		SpanMode:    rt.research.Completeness.SpanMode,
	}
	if err := sched.AddJob(jobs.NewCompletenessAuditJob(engine, runner, plan, log)); err != nil {
		return nil, err
	}

	log.WithFields(map[string]interface{}{
		"window":      plan.Window.String(),
		"frequencies": len(plan.Frequencies),
		"research_id": rt.research.Meta.ResearchID,
	}).Info("completeness_audit registered")
	return sched, nil
}
