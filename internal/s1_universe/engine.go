package s1_universe

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/pkg/logger"
	"github.com/wonny/spxlab/pkg/redis"
)

// HistoricalOptions controls HistoricalMembers when the store is missing
type HistoricalOptions struct {
	// AllowCurrentFallback answers with today's constituents instead of failing.
	// The result is marked MembershipKnown=false and reintroduces survivorship bias.
	AllowCurrentFallback bool
}

// Engine answers point-in-time and historical membership queries over one store.
// The interval table is loaded once and kept in memory until Reload.
// ⭐ SSOT: 유니버스 쿼리는 이 엔진에서만
type Engine struct {
	store   Store
	cache   *redis.Cache
	current contracts.CurrentMembersSource
	logger  *logger.Logger
	now     func() time.Time

	mu        sync.RWMutex
	loaded    bool
	available bool
	manifest  *Manifest
	buildID   string // 구간 테이블에 기록된 빌드 id, 캐시 키
	intervals []contracts.MembershipInterval
	byTicker  map[string][]contracts.MembershipInterval
}

// NewEngine creates a query engine bound to store
func NewEngine(store Store, log *logger.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: log.WithField("module", "universe_engine"),
		now:    contracts.Today,
	}
}

// WithCache caches query answers in Redis, keyed by build id
func (e *Engine) WithCache(cache *redis.Cache) *Engine {
	e.cache = cache
	return e
}

// WithCurrentSource sets the source used by the opt-in historical fallback
func (e *Engine) WithCurrentSource(src contracts.CurrentMembersSource) *Engine {
	e.current = src
	return e
}

// Universe returns the universe name
func (e *Engine) Universe() string {
	return e.store.Universe()
}

// Reload rereads the interval table and manifest.
// A missing store is not an error: the engine stays usable in unknown-membership mode.
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reloadLocked(ctx)
}

func (e *Engine) reloadLocked(ctx context.Context) error {
	snap, err := e.store.ReadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, ErrStoreNotFound) {
			return fmt.Errorf("load intervals: %w", err)
		}
		e.logger.WithFields(map[string]interface{}{
			"universe": e.store.Universe(),
			"location": e.store.Location(),
		}).Warn("Membership store not found, membership is unknown")

		e.loaded, e.available = true, false
		e.manifest, e.buildID, e.intervals, e.byTicker = nil, "", nil, nil
		return nil
	}

	// 매니페스트가 구간 테이블과 다른 빌드면 캐시 키는 구간 테이블 쪽을 따름
	if snap.Manifest != nil && snap.Manifest.BuildID != snap.BuildID {
		e.logger.WithFields(map[string]interface{}{
			"universe":          e.store.Universe(),
			"build_id":          snap.BuildID,
			"manifest_build_id": snap.Manifest.BuildID,
		}).Warn("Manifest does not match interval table")
	}

	e.loaded, e.available = true, true
	e.manifest = snap.Manifest
	e.buildID = snap.BuildID // 빈 값이면 Redis 캐시 비활성
	e.intervals = snap.Intervals
	e.byTicker = contracts.GroupByTicker(snap.Intervals)

	e.logger.WithFields(map[string]interface{}{
		"universe":  e.store.Universe(),
		"intervals": len(snap.Intervals),
		"tickers":   len(e.byTicker),
		"build_id":  e.buildID,
	}).Debug("Membership store loaded")
	return nil
}

// ensureLoaded performs the first load lazily
func (e *Engine) ensureLoaded(ctx context.Context) error {
	e.mu.RLock()
	loaded := e.loaded
	e.mu.RUnlock()
	if loaded {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loaded {
		return nil
	}
	return e.reloadLocked(ctx)
}

// Available reports whether the store exists
func (e *Engine) Available(ctx context.Context) (bool, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.available, nil
}

// Manifest returns the manifest of the loaded build (nil when unknown)
func (e *Engine) Manifest(ctx context.Context) (*Manifest, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.manifest, nil
}

func (e *Engine) buildIDLocked() string {
	return e.buildID
}

// MembersAsOf returns every ticker with start_date <= date <= end_date.
// Zero date means today. A missing store yields an empty universe with
// MembershipKnown=false and no error.
func (e *Engine) MembersAsOf(ctx context.Context, date time.Time) (*contracts.Universe, error) {
	if date.IsZero() {
		date = e.now()
	}
	date = contracts.TruncateDay(date)

	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	available, buildID := e.available, e.buildIDLocked()
	e.mu.RUnlock()

	if !available {
		e.logger.WithField("date", date.Format(contracts.DateLayout)).Warn("members_as_of without membership store")
		return e.unknown(date), nil
	}

	compute := func() (interface{}, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()

		set := make(map[string]struct{})
		for _, iv := range e.intervals {
			if iv.ActiveOn(date) {
				set[iv.Ticker] = struct{}{}
			}
		}
		u := contracts.NewUniverse(e.store.Universe(), date, set)
		u.BuildID = buildID
		return u, nil
	}

	return e.cached(ctx, buildID, func() string {
		return redis.MembersAsOfKey(e.store.Universe(), buildID, date.Format(contracts.DateLayout))
	}, compute)
}

// HistoricalMembers returns every ticker with at least one interval overlapping
// [start, end]: interval.start_date <= end AND interval.end_date >= start.
// Without a store it fails with ErrMembershipUnavailable unless opts allow the
// current-membership fallback.
func (e *Engine) HistoricalMembers(ctx context.Context, start, end time.Time, opts HistoricalOptions) (*contracts.Universe, error) {
	period := contracts.NewDateRange(start, end)
	if !period.Valid() {
		return nil, fmt.Errorf("%s: %w", period, ErrInvalidPeriod)
	}

	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	available, buildID := e.available, e.buildIDLocked()
	e.mu.RUnlock()

	if !available {
		return e.historicalFallback(ctx, period, opts)
	}

	compute := func() (interface{}, error) {
		e.mu.RLock()
		defer e.mu.RUnlock()

		set := make(map[string]struct{})
		for _, iv := range e.intervals {
			if iv.OverlapsPeriod(period) {
				set[iv.Ticker] = struct{}{}
			}
		}
		u := contracts.NewUniverse(e.store.Universe(), period.End, set)
		u.PeriodStart = period.Start
		u.BuildID = buildID
		return u, nil
	}

	return e.cached(ctx, buildID, func() string {
		return redis.HistoricalKey(e.store.Universe(), buildID,
			period.Start.Format(contracts.DateLayout), period.End.Format(contracts.DateLayout))
	}, compute)
}

func (e *Engine) historicalFallback(ctx context.Context, period contracts.DateRange, opts HistoricalOptions) (*contracts.Universe, error) {
	log := e.logger.WithFields(map[string]interface{}{
		"universe": e.store.Universe(),
		"period":   period.String(),
	})

	if !opts.AllowCurrentFallback || e.current == nil {
		log.Warn("historical_members without membership store")
		return nil, fmt.Errorf("%s %s: %w", e.store.Universe(), period, ErrMembershipUnavailable)
	}

	tickers, err := e.current.CurrentMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("current members fallback: %w", err)
	}

	set := make(map[string]struct{}, len(tickers))
	for _, t := range tickers {
		set[t] = struct{}{}
	}
	u := contracts.NewUniverse(e.store.Universe(), period.End, set)
	u.PeriodStart = period.Start
	u.MembershipKnown = false
	u.Source = contracts.SourceCurrentFallback

	// ⭐ 생존 편향: 현재 구성종목으로 대체됨
	log.WithField("tickers", len(u.Tickers)).Warn("historical_members fell back to current constituents (survivorship bias)")
	return u, nil
}

// IntervalsFor returns the ticker's intervals ordered by start_date.
// The ticker is matched case-insensitively. Unknown tickers and a missing
// store both return nil, nil.
func (e *Engine) IntervalsFor(ctx context.Context, ticker string) ([]contracts.MembershipInterval, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	// 스토어 부재는 reloadLocked에서 한 번만 경고
	if !e.available {
		return nil, nil
	}

	group := e.byTicker[contracts.NormalizeTicker(ticker)]
	if len(group) == 0 {
		return nil, nil
	}
	out := make([]contracts.MembershipInterval, len(group))
	copy(out, group)
	return out, nil
}

// AllIntervals returns a copy of the whole interval table
func (e *Engine) AllIntervals(ctx context.Context) ([]contracts.MembershipInterval, error) {
	if err := e.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]contracts.MembershipInterval, len(e.intervals))
	copy(out, e.intervals)
	return out, nil
}

// cached runs compute through Redis when a cache and a build id are present
func (e *Engine) cached(ctx context.Context, buildID string, key func() string, compute func() (interface{}, error)) (*contracts.Universe, error) {
	if e.cache == nil || buildID == "" {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		return v.(*contracts.Universe), nil
	}

	var u contracts.Universe
	if err := e.cache.GetOrSet(ctx, key(), &u, redis.TTLLong, compute); err != nil {
		return nil, err
	}
	return &u, nil
}

func (e *Engine) unknown(date time.Time) *contracts.Universe {
	return &contracts.Universe{
		Name:            e.store.Universe(),
		Date:            date,
		Tickers:         []string{},
		MembershipKnown: false,
		Source:          contracts.SourceUnavailable,
	}
}
