package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/api"
	"github.com/wonny/spxlab/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `읽기 전용 REST API 서버를 시작합니다.

Endpoints:
  GET  /health                                   - Health check
  GET  /metrics                                  - Prometheus metrics (METRICS_ENABLED)
  GET  /api/universe/members?date=               - 시점 구성종목
  GET  /api/universe/historical?start=&end=      - 기간 구성종목 (생존 편향 없음)
  GET  /api/universe/intervals/{ticker}          - 종목 멤버십 구간
  GET  /api/universe/manifest                    - 현재 빌드 정보
  GET  /api/completeness/{ticker}?start=&end=    - 완결성 검사 (&frequency=&span=&resolve=)
  GET  /api/tickers/{symbol}/resolve             - 티커 변경 체인
  GET  /api/tickers/transitions                  - 변경 테이블

Example:
  go run ./cmd/spx api
  go run ./cmd/spx api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: $PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if apiPort != "" {
		rt.cfg.Port = apiPort
	}
	log := rt.log

	engine := rt.Engine()
	resolver, err := rt.Resolver()
	if err != nil {
		return fmt.Errorf("ticker transitions: %w", err)
	}

	h := api.Handlers{
		Universe: handlers.NewUniverseHandler(engine, rt.HistoricalFallback(), log),
		Tickers:  handlers.NewTickerHandler(resolver, log),
	}

	// 가격 저장소가 없으면 완결성 엔드포인트 비활성화
	if ranges, err := rt.PriceRanges(ctx); err == nil {
		h.Completeness = handlers.NewCompletenessHandler(rt.Checker(ranges), resolver, log)
	} else {
		log.WithError(err).Warn("Completeness endpoint disabled")
	}

	server := api.New(rt.cfg, log, api.NewRouter(h, rt.registry, log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", rt.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
