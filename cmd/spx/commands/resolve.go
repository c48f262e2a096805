package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/tickers"
)

// resolveCmd represents the resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve [symbol...]",
	Short: "티커 변경/합병/상장폐지 체인 추적",
	Long: `과거 심볼을 현재 거래 심볼로 해석합니다.
기본 변경 테이블 + research config 의 tickers.transitions 를 사용합니다.

--list 는 전체 변경 테이블을 출력합니다.

Example:
  go run ./cmd/spx resolve CBS FB LIFE
  go run ./cmd/spx resolve --list`,
	RunE: runResolve,
}

var resolveList bool

func init() {
	rootCmd.AddCommand(resolveCmd)

	resolveCmd.Flags().BoolVar(&resolveList, "list", false, "print the effective transition table")
}

func runResolve(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	resolver, err := rt.Resolver()
	if err != nil {
		return fmt.Errorf("ticker transitions: %w", err)
	}

	if resolveList {
		return printTransitions(resolver)
	}
	if len(args) == 0 {
		return fmt.Errorf("pass symbols or --list")
	}

	results := make([]*tickers.Resolution, 0, len(args))
	for _, symbol := range args {
		res, err := resolver.Trace(symbol)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	if jsonOutput {
		return PrintJSON(results)
	}

	widths := []int{8, 10, 5, 30}
	PrintTableHeader([]string{"Symbol", "Current", "Hops", "Chain"}, widths)
	for _, r := range results {
		current := r.Current
		if r.Delisted {
			current = "(delisted)"
		}
		PrintTableRow([]string{r.Symbol, current, fmt.Sprint(r.Hops), strings.Join(r.Chain, " → ")}, widths)
	}
	return nil
}

func printTransitions(resolver *tickers.Resolver) error {
	table := resolver.Transitions()
	if jsonOutput {
		return PrintJSON(table)
	}

	widths := []int{8, 10}
	PrintTableHeader([]string{"Old", "New"}, widths)
	for _, t := range table {
		next := t.New
		if t.Delisted {
			next = "(delisted)"
		}
		PrintTableRow([]string{t.Old, next}, widths)
	}
	return nil
}
