package tickers

import "github.com/wonny/spxlab/internal/contracts"

// DefaultTransitions returns the built-in rename/merger/delisting table.
// ⭐ SSOT: 기본 티커 변경 테이블 (override는 researchconfig에서)
func DefaultTransitions() []contracts.TickerTransition {
	return []contracts.TickerTransition{
		// 사명 변경
		{Old: "CBS", New: "VIAC"},
		{Old: "VIAC", New: "PARA"},
		{Old: "FB", New: "META"},
		{Old: "ANTM", New: "ELV"},
		{Old: "FISV", New: "FI"},
		{Old: "RE", New: "EG"},
		{Old: "PKI", New: "RVTY"},
		{Old: "FLT", New: "CPAY"},
		{Old: "WLTW", New: "WTW"},
		{Old: "ADS", New: "BFH"},

		// 합병/인수로 소멸
		{Old: "LIFE", Delisted: true},
		{Old: "TWTR", Delisted: true},
		{Old: "ATVI", Delisted: true},
		{Old: "XLNX", Delisted: true},
		{Old: "CTXS", Delisted: true},
	}
}
