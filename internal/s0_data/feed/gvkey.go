package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/wonny/spxlab/internal/contracts"
)

// GVKeyMap maps a ticker to its stable company identifier.
// Built once from the identifier-mapping feed; first mapping for a ticker wins.
type GVKeyMap struct {
	byTicker  map[string]int64
	Ambiguous []string // tickers that appeared with more than one gvkey
	Skipped   int      // rows with an empty ticker or non-numeric gvkey
}

// ReadGVKeyFile opens path and parses it with ParseGVKeyMap
func ReadGVKeyFile(path string) (*GVKeyMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gvkey feed: %w", err)
	}
	defer f.Close()

	m, err := ParseGVKeyMap(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// ParseGVKeyMap reads a "gvkey,ticker" CSV (extra columns ignored)
func ParseGVKeyMap(r io.Reader) (*GVKeyMap, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file (want gvkey,ticker)", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, err := columnIndex(header, "gvkey", "ticker")
	if err != nil {
		return nil, err
	}
	keyCol, tickerCol := cols[0], cols[1]

	m := &GVKeyMap{byTicker: make(map[string]int64)}
	ambiguous := make(map[string]struct{})

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if len(row) <= keyCol || len(row) <= tickerCol {
			m.Skipped++
			continue
		}

		ticker := NormalizeTicker(row[tickerCol])
		key, err := strconv.ParseInt(strings.TrimSpace(row[keyCol]), 10, 64)
		if ticker == "" || err != nil {
			m.Skipped++
			continue
		}

		if prev, ok := m.byTicker[ticker]; ok {
			if prev != key {
				ambiguous[ticker] = struct{}{}
			}
			continue
		}
		m.byTicker[ticker] = key
	}

	for t := range ambiguous {
		m.Ambiguous = append(m.Ambiguous, t)
	}
	sort.Strings(m.Ambiguous)
	return m, nil
}

// NewGVKeyMap builds a map from already known pairs
func NewGVKeyMap(pairs map[string]int64) *GVKeyMap {
	m := &GVKeyMap{byTicker: make(map[string]int64, len(pairs))}
	for t, k := range pairs {
		m.byTicker[NormalizeTicker(t)] = k
	}
	return m
}

// Lookup returns the gvkey for ticker
func (m *GVKeyMap) Lookup(ticker string) (int64, bool) {
	if m == nil {
		return 0, false
	}
	k, ok := m.byTicker[ticker]
	return k, ok
}

// Len returns the number of mapped tickers
func (m *GVKeyMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byTicker)
}

// Attach sets GVKey on every interval whose ticker is mapped.
// Returns the sorted distinct tickers left unmapped (a coverage gap, not an error).
func (m *GVKeyMap) Attach(intervals []contracts.MembershipInterval) []string {
	missing := make(map[string]struct{})
	for i := range intervals {
		key, ok := m.Lookup(intervals[i].Ticker)
		if !ok {
			intervals[i].GVKey = nil
			missing[intervals[i].Ticker] = struct{}{}
			continue
		}
		k := key
		intervals[i].GVKey = &k
	}

	unmapped := make([]string, 0, len(missing))
	for t := range missing {
		unmapped = append(unmapped, t)
	}
	sort.Strings(unmapped)
	return unmapped
}
