package researchconfig

import (
	"fmt"
	"regexp"
	"time"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/tickers"
)

var universeNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_]*$`)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.ResearchID == "" {
		return ValidationError{"meta.research_id", "required"}
	}

	// === Universe ===
	if !universeNamePattern.MatchString(cfg.Universe.Name) {
		return ValidationError{"universe.name", "must match [a-z0-9_]+ (used as partition key)"}
	}
	if cfg.Universe.MinDate != "" {
		if _, err := contracts.ParseDate(cfg.Universe.MinDate); err != nil {
			return ValidationError{"universe.min_date", "must be YYYY-MM-DD"}
		}
	}

	// === Research ===
	start, err := contracts.ParseDate(cfg.Research.Start)
	if err != nil {
		return ValidationError{"research.start", "must be YYYY-MM-DD"}
	}
	end, err := contracts.ParseDate(cfg.Research.End)
	if err != nil {
		return ValidationError{"research.end", "must be YYYY-MM-DD"}
	}
	if start.After(end) {
		return ValidationError{"research", "start must be <= end"}
	}

	if len(cfg.Research.Frequencies) == 0 {
		return ValidationError{"research.frequencies", "required"}
	}
	seen := make(map[contracts.Frequency]struct{})
	for i, f := range cfg.Research.Frequencies {
		freq, err := contracts.ParseFrequency(f)
		if err != nil {
			return ValidationError{fmt.Sprintf("research.frequencies[%d]", i), err.Error()}
		}
		if _, dup := seen[freq]; dup {
			return ValidationError{fmt.Sprintf("research.frequencies[%d]", i), "duplicate " + string(freq)}
		}
		seen[freq] = struct{}{}
	}

	// === Feeds ===
	if cfg.Feeds.MembershipCSV == "" {
		return ValidationError{"feeds.membership_csv", "required"}
	}

	// === Tickers ===
	for i, t := range cfg.Tickers.Transitions {
		if t.Old == "" {
			return ValidationError{fmt.Sprintf("tickers.transitions[%d].old", i), "required"}
		}
		if t.Delisted && t.New != "" {
			return ValidationError{fmt.Sprintf("tickers.transitions[%d]", i), "delisted transition must not have new"}
		}
	}
	// base + override 전체 체인이 순환 없이 해석되는지
	if err := tickers.NewDefaultResolver(cfg.Tickers.Transitions...).Validate(); err != nil {
		return ValidationError{"tickers.transitions", err.Error()}
	}

	// === Quality ===
	if err := validatePctRange(cfg.Quality.MinGVKeyCoverage, "quality.min_gvkey_coverage"); err != nil {
		return err
	}
	if err := validatePctRange(cfg.Quality.MaxDroppedRowRatio, "quality.max_dropped_row_ratio"); err != nil {
		return err
	}

	// === Completeness ===
	if cfg.Completeness.Workers < 0 {
		return ValidationError{"completeness.workers", "must be >= 0"}
	}
	if err := cfg.Completeness.ToleranceDays.Tolerances().Validate(); err != nil {
		return ValidationError{"completeness.tolerance_days", err.Error()}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	// span mode는 멤버십 갭을 무시 → 생존 편향 재도입
	if cfg.Completeness.SpanMode {
		warnings = append(warnings, Warning{
			Code:    "SPAN_MODE",
			Message: "span_mode treats membership gaps as continuous; removed periods will be requested",
		})
	}

	if cfg.Universe.MinDate != "" && cfg.MinDate().After(cfg.Window().Start) {
		warnings = append(warnings, Warning{
			Code:    "MIN_DATE_AFTER_START",
			Message: fmt.Sprintf("universe.min_date %s is after research.start %s", cfg.Universe.MinDate, cfg.Research.Start),
		})
	}

	if cfg.Feeds.GVKeyCSV == "" {
		warnings = append(warnings, Warning{
			Code:    "NO_GVKEY_FEED",
			Message: "no gvkey feed: intervals carry no stable company identifier",
		})
	}

	if cfg.Window().End.After(contracts.TruncateDay(time.Now())) {
		warnings = append(warnings, Warning{
			Code:    "FUTURE_END",
			Message: "research.end is in the future; expect end gaps on every ticker",
		})
	}

	return warnings
}

// validatePctRange는 비율 값이 0~1 범위인지 검증
func validatePctRange(pct float64, field string) error {
	if pct < 0 || pct > 1 {
		return ValidationError{field, "must be in range [0, 1]"}
	}
	return nil
}
