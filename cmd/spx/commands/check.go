package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/spxlab/internal/completeness"
	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s1_universe"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check [ticker...]",
	Short: "갭 인식 데이터 완결성 검사",
	Long: `멤버십 구간과 저장된 가격 데이터 범위를 비교해
실제로 가져와야 할 기간(fetch window)만 계산합니다. 데이터는 가져오지 않습니다.

재편입 종목은 구간별로 검사하며, 편출 기간은 요구하지 않습니다.
--span 은 모든 구간을 하나로 합쳐 검사합니다 (생존 편향 재도입, 비권장).

가격 범위 출처:
  --actual TICKER=START:END  (반복 지정, 같은 티커 여러 번 → island)
  DATABASE_URL               (prices.bars, contiguous islands)

Example:
  go run ./cmd/spx check AMD --start 2014-01-01 --end 2024-12-31 \
      --actual AMD=2014-01-02:2016-12-30 --actual AMD=2017-03-20:2024-12-31
  go run ./cmd/spx check --all --research config/research/sp500_default.yaml
  go run ./cmd/spx check CBS --resolve`,
	RunE: runCheck,
}

var (
	checkStart     string
	checkEnd       string
	checkFrequency string
	checkSpan      bool
	checkResolve   bool
	checkAll       bool
	checkActual    []string
)

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringVar(&checkStart, "start", "", "research start YYYY-MM-DD (default: research.start)")
	checkCmd.Flags().StringVar(&checkEnd, "end", "", "research end YYYY-MM-DD (default: research.end)")
	checkCmd.Flags().StringVar(&checkFrequency, "frequency", "", "daily|weekly|monthly (default: research frequencies or daily)")
	checkCmd.Flags().BoolVar(&checkSpan, "span", false, "collapse membership intervals into one span")
	checkCmd.Flags().BoolVar(&checkResolve, "resolve", false, "retry tickers without data under their current symbol")
	checkCmd.Flags().BoolVar(&checkAll, "all", false, "check every historical member of the window")
	checkCmd.Flags().StringArrayVar(&checkActual, "actual", nil, "stored data island TICKER=START:END (repeatable)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 0 && !checkAll {
		return fmt.Errorf("pass tickers or --all")
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	window, err := researchWindow(rt, checkStart, checkEnd)
	if err != nil {
		return err
	}

	freqs, err := checkFrequencies(rt)
	if err != nil {
		return err
	}

	var ranges contracts.RangeSetProvider
	if len(checkActual) > 0 {
		if ranges, err = parseActualFlags(checkActual); err != nil {
			return err
		}
	} else if ranges, err = rt.PriceRanges(ctx); err != nil {
		return err
	}

	tickers := make([]string, 0, len(args))
	for _, a := range args {
		tickers = append(tickers, contracts.NormalizeTicker(a))
	}
	if checkAll {
		universe, err := rt.Engine().HistoricalMembers(ctx, window.Start, window.End, s1_universe.HistoricalOptions{
			AllowCurrentFallback: rt.HistoricalFallback(),
		})
		if err != nil {
			return err
		}
		tickers = append(tickers, universe.Tickers...)
	}

	runner := completeness.NewBatchRunner(rt.Checker(ranges), rt.Workers(), rt.log)
	if checkResolve || (rt.research != nil && rt.research.Completeness.IdentityFallback) {
		resolver, err := rt.Resolver()
		if err != nil {
			return err
		}
		runner = runner.WithResolver(resolver)
	}

	span := checkSpan || (rt.research != nil && rt.research.Completeness.SpanMode)
	if span {
		PrintWarning("Span mode: membership gaps are treated as continuous")
	}

	reports := make([]*completeness.BatchReport, 0, len(freqs))
	for _, freq := range freqs {
		report, err := runner.Run(ctx, tickers, window, completeness.Options{Frequency: freq, SpanMode: span})
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}

	if jsonOutput {
		return PrintJSON(reports)
	}
	for _, r := range reports {
		printBatchReport(r)
	}
	return nil
}

func checkFrequencies(rt *runtime) ([]contracts.Frequency, error) {
	if checkFrequency != "" {
		f, err := contracts.ParseFrequency(checkFrequency)
		if err != nil {
			return nil, err
		}
		return []contracts.Frequency{f}, nil
	}
	if rt.research != nil {
		return rt.research.FrequencyList(), nil
	}
	return []contracts.Frequency{contracts.FrequencyDaily}, nil
}

// parseActualFlags turns TICKER=START:END flags into static islands
func parseActualFlags(flags []string) (completeness.StaticRanges, error) {
	out := make(completeness.StaticRanges)
	for _, f := range flags {
		ticker, span, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("--actual %q: want TICKER=START:END", f)
		}
		startStr, endStr, ok := strings.Cut(span, ":")
		if !ok {
			return nil, fmt.Errorf("--actual %q: want TICKER=START:END", f)
		}
		start, err := contracts.ParseDate(startStr)
		if err != nil {
			return nil, fmt.Errorf("--actual %q: %w", f, err)
		}
		end, err := contracts.ParseDate(endStr)
		if err != nil {
			return nil, fmt.Errorf("--actual %q: %w", f, err)
		}
		if start.After(end) {
			return nil, fmt.Errorf("--actual %q: start after end", f)
		}

		key := contracts.NormalizeTicker(ticker)
		out[key] = append(out[key], contracts.NewDateRange(start, end))
	}
	for _, islands := range out {
		sort.Slice(islands, func(i, j int) bool { return islands[i].Start.Before(islands[j].Start) })
	}
	return out, nil
}

func printBatchReport(r *completeness.BatchReport) {
	PrintHeader(fmt.Sprintf("Completeness %s (%s)", r.Window, r.Frequency),
		[2]string{"Tickers", fmt.Sprint(len(r.Outcomes) + len(r.Errors))},
		[2]string{"Complete", fmt.Sprint(r.Complete)},
		[2]string{"Partial", fmt.Sprint(r.Partial)},
		[2]string{"Missing", fmt.Sprint(r.Missing)},
		[2]string{"Elapsed", r.Elapsed.String()},
	)

	widths := []int{8, 8, 8, 8, 40}
	PrintTableHeader([]string{"Ticker", "Data", "Status", "Missing", "Fetch"}, widths)
	for _, o := range r.Outcomes {
		data := o.Ticker
		if o.ResolvedSymbol != "" {
			data = o.ResolvedSymbol
		}

		windows := o.Result.FetchWindows()
		fetch := "-"
		if len(windows) > 0 {
			parts := make([]string, len(windows))
			for i, w := range windows {
				parts[i] = w.String()
			}
			fetch = strings.Join(parts, ", ")
		}

		status := string(o.Result.OverallStatus())
		if multi, ok := o.Result.(*contracts.MultiPeriodResult); ok {
			status = fmt.Sprintf("%s×%d", status, multi.Summary.TotalIntervals)
		}
		PrintTableRow([]string{o.Ticker, data, status, fmt.Sprint(o.Result.TotalMissingDays()), fetch}, widths)
	}

	if len(r.Errors) > 0 {
		PrintSeparator()
		keys := make([]string, 0, len(r.Errors))
		for k := range r.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			PrintError(fmt.Sprintf("%s: %s", k, r.Errors[k]))
		}
	}
}
