package contracts

import (
	"context"
	"time"
)

// MembershipStore persists the interval table of one universe
// ⭐ SSOT: 구성종목 구간 저장소 인터페이스
type MembershipStore interface {
	ReadIntervals(ctx context.Context) ([]MembershipInterval, error)
	WriteIntervals(ctx context.Context, intervals []MembershipInterval) error
}

// DailyStore persists the daily (ticker, date) table of one universe
type DailyStore interface {
	ReadDaily(ctx context.Context) ([]MembershipRecord, error)
	WriteDaily(ctx context.Context, records []MembershipRecord) error
}

// DataRangeProvider reports the contiguous price data range already stored for a ticker.
// A nil range with nil error means no data.
// ⭐ SSOT: 가격 저장소 협력자 인터페이스 (fetch는 하지 않음)
type DataRangeProvider interface {
	GetExistingDateRange(ctx context.Context, ticker string, freq Frequency) (*DateRange, error)
}

// RangeSetProvider reports stored data as a list of contiguous islands
type RangeSetProvider interface {
	GetDataRanges(ctx context.Context, ticker string, freq Frequency) ([]DateRange, error)
}

// CurrentMembersSource lists today's constituents from outside the store
type CurrentMembersSource interface {
	CurrentMembers(ctx context.Context) ([]string, error)
}

// UniverseQuery answers point-in-time and historical membership questions
// ⭐ SSOT: 유니버스 쿼리 인터페이스
type UniverseQuery interface {
	MembersAsOf(ctx context.Context, date time.Time) (*Universe, error)
	IntervalsFor(ctx context.Context, ticker string) ([]MembershipInterval, error)
}
