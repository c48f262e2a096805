package contracts

import (
	"sort"
	"time"
)

// Universe source values
const (
	SourceStore           = "store"            // 구성종목 저장소에서 조회
	SourceUnavailable     = "unavailable"      // 저장소 없음 (membership unknown)
	SourceCurrentFallback = "current_fallback" // opt-in 현재 구성종목 대체
)

// Universe is the answer of a membership query
// ⭐ SSOT: 유니버스 쿼리 결과 전달
type Universe struct {
	Name            string    `json:"name"`
	Date            time.Time `json:"date"`                 // as-of date, or period end for historical queries
	PeriodStart     time.Time `json:"period_start,omitempty"`
	Tickers         []string  `json:"tickers"`
	MembershipKnown bool      `json:"membership_known"`
	Source          string    `json:"source"`
	BuildID         string    `json:"build_id,omitempty"`
}

// NewUniverse builds a universe from a ticker set, sorted for stable output
func NewUniverse(name string, date time.Time, set map[string]struct{}) *Universe {
	tickers := make([]string, 0, len(set))
	for t := range set {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return &Universe{
		Name:            name,
		Date:            date,
		Tickers:         tickers,
		MembershipKnown: true,
		Source:          SourceStore,
	}
}

// Contains checks if a ticker is in the universe
func (u *Universe) Contains(ticker string) bool {
	i := sort.SearchStrings(u.Tickers, ticker)
	return i < len(u.Tickers) && u.Tickers[i] == ticker
}

// Count returns the number of tickers
func (u *Universe) Count() int {
	return len(u.Tickers)
}

// Set returns the tickers as a set
func (u *Universe) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(u.Tickers))
	for _, t := range u.Tickers {
		out[t] = struct{}{}
	}
	return out
}
