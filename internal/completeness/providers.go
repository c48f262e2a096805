package completeness

import (
	"context"

	"github.com/wonny/spxlab/internal/contracts"
)

// StaticRanges serves fixed islands per ticker (CLI --actual flags, tests).
// Frequency is ignored.
type StaticRanges map[string][]contracts.DateRange

// GetDataRanges implements contracts.RangeSetProvider
func (s StaticRanges) GetDataRanges(ctx context.Context, ticker string, freq contracts.Frequency) ([]contracts.DateRange, error) {
	ranges := s[contracts.NormalizeTicker(ticker)]
	if len(ranges) == 0 {
		return nil, nil
	}
	out := make([]contracts.DateRange, len(ranges))
	copy(out, ranges)
	return out, nil
}

// singleRange adapts a min/max provider to the island interface
type singleRange struct {
	provider contracts.DataRangeProvider
}

// FromDateRange treats the provider's [min, max] as one contiguous island.
// Interior holes are invisible through this adapter.
func FromDateRange(p contracts.DataRangeProvider) contracts.RangeSetProvider {
	return singleRange{provider: p}
}

func (s singleRange) GetDataRanges(ctx context.Context, ticker string, freq contracts.Frequency) ([]contracts.DateRange, error) {
	r, err := s.provider.GetExistingDateRange(ctx, ticker, freq)
	if err != nil || r == nil {
		return nil, err
	}
	return []contracts.DateRange{*r}, nil
}
