package completeness

import (
	"fmt"

	"github.com/wonny/spxlab/internal/contracts"
)

// defaultTolerance is the allowed boundary slack in days before a gap counts as missing.
// daily: weekend/holiday, weekly: any weekday anchoring, monthly: month-end vs last trading day
var defaultTolerance = map[contracts.Frequency]int{
	contracts.FrequencyDaily:   2,
	contracts.FrequencyWeekly:  6,
	contracts.FrequencyMonthly: 3,
}

// DefaultTolerance returns the built-in tolerance for freq
func DefaultTolerance(freq contracts.Frequency) (int, error) {
	tol, ok := defaultTolerance[freq]
	if !ok {
		return 0, fmt.Errorf("no tolerance for frequency %q", freq)
	}
	return tol, nil
}

// Tolerances overrides the built-in table per frequency
type Tolerances map[contracts.Frequency]int

// For returns the override for freq, or the built-in value
func (t Tolerances) For(freq contracts.Frequency) (int, error) {
	if tol, ok := t[freq]; ok {
		return tol, nil
	}
	return DefaultTolerance(freq)
}

// Validate rejects unknown frequencies and negative overrides
func (t Tolerances) Validate() error {
	for freq, tol := range t {
		if _, ok := defaultTolerance[freq]; !ok {
			return fmt.Errorf("tolerance override for unknown frequency %q", freq)
		}
		if tol < 0 {
			return fmt.Errorf("tolerance for %s must be >= 0, got %d", freq, tol)
		}
	}
	return nil
}
