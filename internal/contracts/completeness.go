package contracts

import (
	"fmt"
	"strings"
)

// Frequency is the sampling frequency of a price series
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency accepts daily, weekly or monthly (case-insensitive)
func ParseFrequency(s string) (Frequency, error) {
	switch f := Frequency(strings.ToLower(strings.TrimSpace(s))); f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return f, nil
	default:
		return "", fmt.Errorf("unknown frequency %q (expected daily|weekly|monthly)", s)
	}
}

// Status is the completeness state of a required period
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
	StatusMissing  Status = "missing"
)

// Reason explains how a result was produced when the plain path was not taken
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoOverlap         Reason = "no_overlap"         // 멤버십 구간과 연구 기간이 겹치지 않음
	ReasonMembershipUnknown Reason = "membership_unknown" // 멤버십 정보 없음, 연구 기간 전체 검사
)

// CompletenessResult is the tagged union returned by the checker.
// Callers switch on the concrete type: *SinglePeriodResult or *MultiPeriodResult.
type CompletenessResult interface {
	TickerSymbol() string
	OverallStatus() Status
	HasGaps() bool
	TotalMissingDays() int
	FetchWindows() []DateRange
	isCompletenessResult()
}

// SinglePeriodResult covers zero or one overlap period, and the unknown-membership fallback
type SinglePeriodResult struct {
	Ticker           string      `json:"ticker"`
	Status           Status      `json:"status"`
	Reason           Reason      `json:"reason,omitempty"`
	Required         *DateRange  `json:"required,omitempty"`
	Membership       *DateRange  `json:"membership,omitempty"`
	Actual           *DateRange  `json:"actual,omitempty"`
	MissingStartDays int         `json:"missing_start_days"`
	MissingEndDays   int         `json:"missing_end_days"`
	MissingDays      int         `json:"missing_days"`
	Fetch            *DateRange  `json:"fetch,omitempty"`
	Windows          []DateRange `json:"fetch_windows,omitempty"`
}

func (r *SinglePeriodResult) TickerSymbol() string      { return r.Ticker }
func (r *SinglePeriodResult) OverallStatus() Status     { return r.Status }
func (r *SinglePeriodResult) HasGaps() bool             { return false }
func (r *SinglePeriodResult) TotalMissingDays() int     { return r.MissingDays }
func (r *SinglePeriodResult) FetchWindows() []DateRange { return r.Windows }
func (r *SinglePeriodResult) isCompletenessResult()     {}

// PeriodCompleteness is the per-overlap completeness of one membership interval
type PeriodCompleteness struct {
	Membership       DateRange   `json:"membership"`
	Effective        DateRange   `json:"effective"`
	Status           Status      `json:"status"`
	Actual           *DateRange  `json:"actual,omitempty"`
	MissingStartDays int         `json:"missing_start_days"`
	MissingEndDays   int         `json:"missing_end_days"`
	MissingDays      int         `json:"missing_days"`
	Fetch            *DateRange  `json:"fetch,omitempty"`
	Windows          []DateRange `json:"fetch_windows,omitempty"`
}

// MultiSummary aggregates a multi-period result
type MultiSummary struct {
	TotalIntervals   int  `json:"total_intervals"`
	HasGaps          bool `json:"has_gaps"`
	TotalMissingDays int  `json:"total_missing_days"`
}

// MultiPeriodResult is returned when a ticker has several overlap periods
// (removed and re-added inside the research window)
type MultiPeriodResult struct {
	Ticker    string               `json:"ticker"`
	Status    Status               `json:"status"`
	Summary   MultiSummary         `json:"summary"`
	Intervals []PeriodCompleteness `json:"intervals"`
}

func (r *MultiPeriodResult) TickerSymbol() string  { return r.Ticker }
func (r *MultiPeriodResult) OverallStatus() Status { return r.Status }
func (r *MultiPeriodResult) HasGaps() bool         { return r.Summary.HasGaps }
func (r *MultiPeriodResult) TotalMissingDays() int { return r.Summary.TotalMissingDays }
func (r *MultiPeriodResult) isCompletenessResult() {}

// FetchWindows concatenates the windows of every sub-interval in order
func (r *MultiPeriodResult) FetchWindows() []DateRange {
	var out []DateRange
	for _, iv := range r.Intervals {
		out = append(out, iv.Windows...)
	}
	return out
}
