package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/contracts"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "저장소 / DB / Redis 상태 확인",
	Long: `구성종목 저장소의 현재 빌드와 외부 연결 상태를 표시합니다.

이 명령어는:
- 저장소 위치와 manifest (빌드 ID, 캘린더 범위)
- DATABASE_URL 설정 시 Ping, Health Check, Connection Pool 통계
- REDIS_ENABLED 설정 시 Ping

Example:
  go run ./cmd/spx status`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	PrintHeader("spxlab status",
		[2]string{"Env", rt.cfg.Env},
		[2]string{"Universe", rt.cfg.Membership.Universe},
		[2]string{"Backend", rt.cfg.Membership.Backend},
		[2]string{"Store", rt.store.Location()},
	)

	// 1. Membership store
	manifest, err := rt.Engine().Manifest(ctx)
	switch {
	case err != nil:
		PrintError("Membership store: " + err.Error())
	case manifest == nil:
		PrintWarning("Membership store not built (run: spx build)")
	default:
		PrintSuccess("Membership store available")
		PrintKeyValue("Build ID", manifest.BuildID, 14)
		PrintKeyValue("Created", manifest.CreatedAt.Format(time.RFC3339), 14)
		PrintKeyValue("Source", manifest.Source, 14)
		PrintKeyValue("Intervals", fmt.Sprint(manifest.IntervalRows), 14)
		PrintKeyValue("Calendar", fmt.Sprintf("%s ~ %s",
			manifest.CalendarStart.Format(contracts.DateLayout), manifest.CalendarEnd.Format(contracts.DateLayout)), 14)
	}
	PrintSeparator()

	// 2. Database
	if rt.db == nil {
		PrintInfo("Database not configured (DATABASE_URL)")
	} else {
		status, err := rt.db.HealthCheck(ctx)
		if err != nil {
			PrintError("Database health check failed: " + err.Error())
		} else {
			PrintSuccess(fmt.Sprintf("Database %s (%v)", redactURL(rt.cfg.Database.URL), status.ResponseTime))
			PrintKeyValue("Max conns", fmt.Sprint(status.Stats.MaxConns), 14)
			PrintKeyValue("Total conns", fmt.Sprint(status.Stats.TotalConns), 14)
			PrintKeyValue("Idle conns", fmt.Sprint(status.Stats.IdleConns), 14)
			PrintKeyValue("Acquires", fmt.Sprint(status.Stats.AcquireCount), 14)
		}
	}
	PrintSeparator()

	// 3. Redis
	if !rt.redis.Enabled() {
		PrintInfo("Redis disabled (REDIS_ENABLED)")
	} else if err := rt.redis.Ping(ctx); err != nil {
		PrintError("Redis ping failed: " + err.Error())
	} else {
		PrintSuccess(fmt.Sprintf("Redis %s:%s", rt.cfg.Redis.Host, rt.cfg.Redis.Port))
	}

	return nil
}

// redactURL hides the password of a connection URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	return u.Redacted()
}
