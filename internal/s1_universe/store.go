package s1_universe

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/spxlab/internal/contracts"
)

var (
	// ErrStoreNotFound is returned when the membership tables of a universe do not exist
	ErrStoreNotFound = errors.New("membership store not found")

	// ErrMembershipUnavailable is returned by historical queries when the store is
	// missing and the caller did not opt into the current-membership fallback
	ErrMembershipUnavailable = errors.New("historical membership unavailable")

	// ErrInvalidPeriod is returned when a query period ends before it starts
	ErrInvalidPeriod = errors.New("invalid period: start after end")
)

// Store is a persisted membership table pair for one universe
type Store interface {
	contracts.MembershipStore
	contracts.DailyStore

	ReadManifest(ctx context.Context) (*Manifest, error)
	WriteManifest(ctx context.Context, m *Manifest) error

	// CommitBuild persists daily table, interval table and manifest as one build
	CommitBuild(ctx context.Context, b *Build) error
	// ReadSnapshot loads the interval table with the build id it was committed under
	ReadSnapshot(ctx context.Context) (*Snapshot, error)

	// Universe returns the universe name the store is bound to
	Universe() string
	// Location describes where the tables live (path or DSN-less table name)
	Location() string
}

// Build is everything one ingestion run persists
type Build struct {
	Daily     []contracts.MembershipRecord
	Intervals []contracts.MembershipInterval
	Manifest  *Manifest
}

// Snapshot is the committed interval table.
// BuildID comes from the interval table itself and is empty when the table was
// written outside CommitBuild; Manifest is nil when manifest is missing.
type Snapshot struct {
	Intervals []contracts.MembershipInterval
	BuildID   string
	Manifest  *Manifest
}

// Manifest describes the last successful build of a universe
type Manifest struct {
	BuildID       string    `json:"build_id"`
	Universe      string    `json:"universe"`
	CreatedAt     time.Time `json:"created_at"`
	DailyRows     int       `json:"daily_rows"`
	IntervalRows  int       `json:"interval_rows"`
	Tickers       int       `json:"tickers"`
	CalendarStart time.Time `json:"calendar_start"`
	CalendarEnd   time.Time `json:"calendar_end"`
	CalendarDays  int       `json:"calendar_days"`
	Source        string    `json:"source"`
}

// NewManifest stamps a fresh build id for the synthesis result
func NewManifest(universe, source string, dailyRows int, syn *Synthesis) *Manifest {
	m := &Manifest{
		BuildID:      uuid.NewString(),
		Universe:     universe,
		CreatedAt:    time.Now().UTC(),
		DailyRows:    dailyRows,
		IntervalRows: len(syn.Intervals),
		CalendarDays: len(syn.Calendar),
		Source:       source,
	}

	tickers := make(map[string]struct{})
	for _, iv := range syn.Intervals {
		tickers[iv.Ticker] = struct{}{}
	}
	m.Tickers = len(tickers)

	if n := len(syn.Calendar); n > 0 {
		m.CalendarStart = syn.Calendar[0]
		m.CalendarEnd = syn.Calendar[n-1]
	}
	return m
}
