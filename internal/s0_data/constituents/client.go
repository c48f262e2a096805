package constituents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/spxlab/pkg/httputil"
	"github.com/wonny/spxlab/pkg/logger"
	"github.com/wonny/spxlab/pkg/redis"
)

// ErrTableNotFound is returned when the page has no constituents table
var ErrTableNotFound = errors.New("constituents table not found")

// Constituent is one row of the current constituents table
type Constituent struct {
	Symbol    string     `json:"symbol"`
	Name      string     `json:"name"`
	Sector    string     `json:"sector,omitempty"`
	DateAdded *time.Time `json:"date_added,omitempty"`
}

// Snapshot is today's constituent list
type Snapshot struct {
	AsOf         time.Time     `json:"as_of"`
	Source       string        `json:"source"`
	Constituents []Constituent `json:"constituents"`
}

// Symbols returns the sorted symbols in the snapshot
func (s *Snapshot) Symbols() []string {
	out := make([]string, 0, len(s.Constituents))
	for _, c := range s.Constituents {
		out = append(out, c.Symbol)
	}
	sort.Strings(out)
	return out
}

// Client scrapes the current constituents page.
// It implements contracts.CurrentMembersSource.
// ⭐ SSOT: 현재 구성종목 스크래핑은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	cache      *redis.Cache
	url        string
	tableID    string
	universe   string
}

// NewClient creates a scraper for url; tableID selects table#id on the page
func NewClient(httpClient *httputil.Client, log *logger.Logger, url, tableID, universe string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "constituents"),
		url:        url,
		tableID:    tableID,
		universe:   universe,
	}
}

// WithCache caches the symbol list for redis.TTLShort
func (c *Client) WithCache(cache *redis.Cache) *Client {
	c.cache = cache
	return c
}

// CurrentMembers returns today's sorted symbols
func (c *Client) CurrentMembers(ctx context.Context) ([]string, error) {
	if c.cache == nil {
		snap, err := c.FetchSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		return snap.Symbols(), nil
	}

	var symbols []string
	err := c.cache.GetOrSet(ctx, redis.CurrentMembersKey(c.universe), &symbols, redis.TTLShort, func() (interface{}, error) {
		snap, err := c.FetchSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		return snap.Symbols(), nil
	})
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

// FetchSnapshot downloads and parses the constituents page
func (c *Client) FetchSnapshot(ctx context.Context) (*Snapshot, error) {
	body, err := c.httpClient.GetBody(ctx, c.url)
	if err != nil {
		return nil, fmt.Errorf("fetch constituents page: %w", err)
	}

	rows, err := ParseTable(body, c.tableID)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"universe": c.universe,
		"count":    len(rows),
	}).Debug("Fetched constituents")

	return &Snapshot{
		AsOf:         time.Now().UTC().Truncate(24 * time.Hour),
		Source:       c.url,
		Constituents: rows,
	}, nil
}

// ParseTable extracts constituents from table#tableID (or the first wikitable when tableID is empty)
func ParseTable(html []byte, tableID string) ([]Constituent, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var table *goquery.Selection
	if tableID != "" {
		table = doc.Find("table#" + tableID).First()
	} else {
		table = doc.Find("table.wikitable").First()
	}
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w (id=%q)", ErrTableNotFound, tableID)
	}

	// 헤더 위치로 컬럼 매핑 (기본: Symbol | Security | GICS Sector ... | Date added)
	cols := map[string]int{"symbol": 0, "security": 1, "sector": -1, "added": -1}
	table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		h := strings.ToLower(strings.TrimSpace(th.Text()))
		switch {
		case strings.HasPrefix(h, "symbol") || h == "ticker":
			cols["symbol"] = i
		case strings.HasPrefix(h, "security") || h == "company":
			cols["security"] = i
		case h == "gics sector" || h == "sector":
			cols["sector"] = i
		case strings.HasPrefix(h, "date added"):
			cols["added"] = i
		}
	})

	seen := make(map[string]struct{})
	var out []Constituent

	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() <= cols["symbol"] {
			return
		}

		symbol := strings.ToUpper(strings.TrimSpace(cells.Eq(cols["symbol"]).Text()))
		if symbol == "" {
			return
		}
		if _, dup := seen[symbol]; dup {
			return
		}
		seen[symbol] = struct{}{}

		c := Constituent{
			Symbol: symbol,
			Name:   cellText(cells, cols["security"]),
			Sector: cellText(cells, cols["sector"]),
		}
		if added := cellText(cells, cols["added"]); added != "" {
			if t, err := time.Parse("2006-01-02", added[:min(len(added), 10)]); err == nil {
				c.DateAdded = &t
			}
		}
		out = append(out, c)
	})

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no rows", ErrTableNotFound)
	}
	return out, nil
}

func cellText(cells *goquery.Selection, idx int) string {
	if idx < 0 || idx >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(idx).Text())
}
