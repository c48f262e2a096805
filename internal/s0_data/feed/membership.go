package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/wonny/spxlab/internal/contracts"
)

// ErrMissingColumn is returned when a feed header lacks a required column
var ErrMissingColumn = errors.New("feed: missing required column")

// date layouts accepted in the raw feed, first match wins
var dateLayouts = []string{
	contracts.DateLayout,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"20060102",
}

// MembershipFeed is the exploded, deduplicated form of a raw membership file
type MembershipFeed struct {
	Records          []contracts.MembershipRecord
	RawRows          int
	DroppedRows      int // unparsable dates
	DuplicateRecords int // repeated (ticker, date) pairs removed
}

// ReadMembershipFile opens path and parses it with ParseMembership
func ReadMembershipFile(path string) (*MembershipFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open membership feed: %w", err)
	}
	defer f.Close()

	feed, err := ParseMembership(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return feed, nil
}

// ParseMembership reads "date,tickers" rows where tickers is a comma separated list.
// Tickers are trimmed and upper-cased. Rows whose date does not parse are counted and skipped.
// Records are returned sorted by (date, ticker).
func ParseMembership(r io.Reader) (*MembershipFeed, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file (want date,tickers)", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols, err := columnIndex(header, "date", "tickers")
	if err != nil {
		return nil, err
	}
	dateCol, tickersCol := cols[0], cols[1]
	tickersLast := tickersCol == len(header)-1

	feed := &MembershipFeed{}
	seen := make(map[contracts.MembershipRecord]struct{})

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", feed.RawRows+2, err)
		}
		feed.RawRows++

		if len(row) <= dateCol {
			feed.DroppedRows++
			continue
		}
		date, ok := parseDate(row[dateCol])
		if !ok {
			feed.DroppedRows++
			continue
		}

		var list []string
		switch {
		case len(row) <= tickersCol:
		case tickersLast:
			// an unquoted list spills over into trailing fields
			list = row[tickersCol:]
		default:
			list = row[tickersCol : tickersCol+1]
		}

		for _, field := range list {
			for _, raw := range strings.Split(field, ",") {
				ticker := NormalizeTicker(raw)
				if ticker == "" {
					continue
				}
				rec := contracts.MembershipRecord{Ticker: ticker, Date: date}
				if _, dup := seen[rec]; dup {
					feed.DuplicateRecords++
					continue
				}
				seen[rec] = struct{}{}
				feed.Records = append(feed.Records, rec)
			}
		}
	}

	SortRecords(feed.Records)
	return feed, nil
}

// NormalizeTicker trims and upper-cases a symbol
func NormalizeTicker(s string) string {
	return contracts.NormalizeTicker(s)
}

// SortRecords orders records by date then ticker
func SortRecords(records []contracts.MembershipRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		return records[i].Ticker < records[j].Ticker
	})
}

// MergeRecords unions two record sets, dropping duplicate (ticker, date) pairs
func MergeRecords(base, extra []contracts.MembershipRecord) ([]contracts.MembershipRecord, int) {
	seen := make(map[contracts.MembershipRecord]struct{}, len(base)+len(extra))
	out := make([]contracts.MembershipRecord, 0, len(base)+len(extra))
	dups := 0

	for _, batch := range [][]contracts.MembershipRecord{base, extra} {
		for _, rec := range batch {
			rec.Date = contracts.TruncateDay(rec.Date)
			if _, ok := seen[rec]; ok {
				dups++
				continue
			}
			seen[rec] = struct{}{}
			out = append(out, rec)
		}
	}

	SortRecords(out)
	return out, dups
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// columnIndex finds each wanted column (case-insensitive) in header
func columnIndex(header []string, want ...string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := pos[name]; !ok {
			pos[name] = i
		}
	}

	out := make([]int, len(want))
	for i, w := range want {
		idx, ok := pos[w]
		if !ok {
			return nil, fmt.Errorf("%w: %q (header: %s)", ErrMissingColumn, w, strings.Join(header, ","))
		}
		out[i] = idx
	}
	return out, nil
}
