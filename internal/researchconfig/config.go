package researchconfig

import (
	"time"

	"github.com/wonny/spxlab/internal/completeness"
	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s0_data/quality"
)

// Config는 한 연구(백테스트/팩터 분석)의 유니버스·기간·완결성 설정
type Config struct {
	Meta         Meta           `yaml:"meta" json:"meta"`
	Universe     Universe       `yaml:"universe" json:"universe"`
	Research     Research       `yaml:"research" json:"research"`
	Feeds        Feeds          `yaml:"feeds" json:"feeds"`
	Tickers      Tickers        `yaml:"tickers" json:"tickers"`
	Quality      quality.Config `yaml:"quality" json:"quality"`
	Completeness Completeness   `yaml:"completeness" json:"completeness"`
}

// Meta 메타 정보
type Meta struct {
	ResearchID  string `yaml:"research_id" json:"research_id"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description" json:"description"`
}

// Universe 구성종목 저장소 설정
type Universe struct {
	Name    string `yaml:"name" json:"name"`         // partition key: universe={name}
	MinDate string `yaml:"min_date" json:"min_date"` // YYYY-MM-DD, 이전 레코드는 합성에서 제외
	Backup  bool   `yaml:"backup" json:"backup"`     // 재빌드 시 .bak 보관
}

// Research 연구 기간
type Research struct {
	Start       string   `yaml:"start" json:"start"` // YYYY-MM-DD
	End         string   `yaml:"end" json:"end"`     // YYYY-MM-DD
	Frequencies []string `yaml:"frequencies" json:"frequencies"`
}

// Feeds 원천 파일 경로
type Feeds struct {
	MembershipCSV string `yaml:"membership_csv" json:"membership_csv"`
	GVKeyCSV      string `yaml:"gvkey_csv" json:"gvkey_csv"` // optional
}

// Tickers 티커 변경 테이블 override
type Tickers struct {
	Transitions []contracts.TickerTransition `yaml:"transitions" json:"transitions"`
}

// Completeness 완결성 검사 설정
type Completeness struct {
	SpanMode         bool              `yaml:"span_mode" json:"span_mode"` // opt-in, 기본 false
	IdentityFallback bool              `yaml:"identity_fallback" json:"identity_fallback"`
	Workers          int               `yaml:"workers" json:"workers"` // 0 = COMPLETENESS_WORKERS
	ToleranceDays    ToleranceOverride `yaml:"tolerance_days" json:"tolerance_days"`
}

// ToleranceOverride nil 필드는 기본값 사용 (daily 2, weekly 6, monthly 3)
// map 대신 struct: 해시 재현성
type ToleranceOverride struct {
	Daily   *int `yaml:"daily" json:"daily,omitempty"`
	Weekly  *int `yaml:"weekly" json:"weekly,omitempty"`
	Monthly *int `yaml:"monthly" json:"monthly,omitempty"`
}

// Tolerances converts the overrides for the checker
func (t ToleranceOverride) Tolerances() completeness.Tolerances {
	out := completeness.Tolerances{}
	if t.Daily != nil {
		out[contracts.FrequencyDaily] = *t.Daily
	}
	if t.Weekly != nil {
		out[contracts.FrequencyWeekly] = *t.Weekly
	}
	if t.Monthly != nil {
		out[contracts.FrequencyMonthly] = *t.Monthly
	}
	return out
}

// Window returns the research window (call after Validate)
func (c *Config) Window() contracts.DateRange {
	start, _ := contracts.ParseDate(c.Research.Start)
	end, _ := contracts.ParseDate(c.Research.End)
	return contracts.NewDateRange(start, end)
}

// MinDate returns the synthesis cutoff, zero when unset
func (c *Config) MinDate() time.Time {
	if c.Universe.MinDate == "" {
		return time.Time{}
	}
	d, _ := contracts.ParseDate(c.Universe.MinDate)
	return d
}

// FrequencyList returns the parsed frequencies (call after Validate)
func (c *Config) FrequencyList() []contracts.Frequency {
	out := make([]contracts.Frequency, 0, len(c.Research.Frequencies))
	for _, f := range c.Research.Frequencies {
		if freq, err := contracts.ParseFrequency(f); err == nil {
			out = append(out, freq)
		}
	}
	return out
}

// RunSnapshot ties a completeness run to the exact config and membership build
type RunSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	ConfigYAML string    `json:"config_yaml"`
	ResearchID string    `json:"research_id"`
	BuildID    string    `json:"build_id"`
	CreatedAt  time.Time `json:"created_at"`
}
