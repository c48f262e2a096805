package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	researchFile string
	universeName string
	verbose      bool
	jsonOutput   bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spx",
	Short: "spxlab - 생존 편향 없는 S&P 500 유니버스 / 데이터 완결성 엔진",
	Long: `spxlab Unified CLI

구성종목 이력을 구간 테이블로 합성하고, 과거 시점 유니버스를 조회하며,
편출/재편입 갭을 고려해 가격 데이터 완결성을 검사합니다.

Usage:
  go run ./cmd/spx [command]

Examples:
  go run ./cmd/spx build --feed data/raw/sp500_membership.csv
  go run ./cmd/spx members --date 2020-06-30
  go run ./cmd/spx historical --start 2014-01-01 --end 2024-12-31
  go run ./cmd/spx check AMD --start 2014-01-01 --end 2024-12-31
  go run ./cmd/spx resolve CBS FB
  go run ./cmd/spx api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Ctrl+C cancels the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&researchFile, "research", "", "research config YAML (default: $RESEARCH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&universeName, "universe", "", "universe name (default: $UNIVERSE or research config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}
