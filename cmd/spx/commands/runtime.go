package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/wonny/spxlab/internal/completeness"
	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/researchconfig"
	"github.com/wonny/spxlab/internal/s0_data/constituents"
	"github.com/wonny/spxlab/internal/s0_data/prices"
	"github.com/wonny/spxlab/internal/s0_data/quality"
	"github.com/wonny/spxlab/internal/s1_universe"
	"github.com/wonny/spxlab/internal/tickers"
	"github.com/wonny/spxlab/pkg/config"
	"github.com/wonny/spxlab/pkg/database"
	"github.com/wonny/spxlab/pkg/httputil"
	"github.com/wonny/spxlab/pkg/logger"
	"github.com/wonny/spxlab/pkg/redis"
)

// runtime wires config, logging and stores for one command invocation
type runtime struct {
	cfg      *config.Config
	log      *logger.Logger
	research *researchconfig.Config // nil without a research config
	yaml     []byte
	db       *database.DB // nil without DATABASE_URL
	redis    *redis.Client
	cache    *redis.Cache
	store    s1_universe.Store
	registry *prometheus.Registry

	engine  *s1_universe.Engine
	metrics *completeness.Metrics
}

// newRuntime loads env config, the optional research config, and opens stores
func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	rt := &runtime{cfg: cfg, log: logger.New(cfg)}

	path := researchFile
	if path == "" {
		path = cfg.ResearchConfigPath
	}
	if path != "" {
		rc, data, err := researchconfig.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load research config: %w", err)
		}
		for _, w := range researchconfig.Warn(rc) {
			rt.log.WithField("code", w.Code).Warn(w.Message)
		}
		rt.research, rt.yaml = rc, data
		cfg.Membership.Universe = rc.Universe.Name
	}
	if universeName != "" {
		cfg.Membership.Universe = universeName
	}

	if cfg.HasDatabase() {
		if rt.db, err = database.New(ctx, cfg); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
	}

	if rt.redis, err = redis.New(ctx, cfg); err != nil {
		rt.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	rt.cache = redis.NewCache(rt.redis, "spxlab")

	if rt.store, err = rt.openStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.MetricsEnabled {
		rt.registry = prometheus.NewRegistry()
		rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if rt.db != nil {
			rt.registry.MustRegister(database.NewPoolCollector(rt.db))
		}
	}

	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context) (s1_universe.Store, error) {
	universe := rt.cfg.Membership.Universe

	switch rt.cfg.Membership.Backend {
	case config.BackendPostgres:
		store := s1_universe.NewPostgresStore(rt.db, universe)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		backup := true
		if rt.research != nil {
			backup = rt.research.Universe.Backup
		}
		return s1_universe.NewParquetStore(rt.cfg.Membership.DataRoot, universe, backup), nil
	}
}

// Close releases database and redis connections
func (rt *runtime) Close() {
	if rt.db != nil {
		rt.db.Close()
	}
	if rt.redis != nil {
		rt.redis.Close()
	}
}

// Engine returns the shared query engine
func (rt *runtime) Engine() *s1_universe.Engine {
	if rt.engine == nil {
		rt.engine = s1_universe.NewEngine(rt.store, rt.log).
			WithCache(rt.cache).
			WithCurrentSource(rt.Constituents())
	}
	return rt.engine
}

// Constituents returns the current-constituents scraper with a shared rate limit
func (rt *runtime) Constituents() *constituents.Client {
	c := rt.cfg.Constituents

	var limiter httputil.Limiter = httputil.NewLocalLimiter(c.RequestsPerS)
	if rt.redis.Enabled() {
		limiter = redis.NewRateLimiter(rt.redis, "spxlab").Bind(redis.ConstituentsRateLimit(c.RequestsPerS))
	}

	httpClient := httputil.New(rt.cfg, rt.log).WithLimiter(limiter)
	return constituents.NewClient(httpClient, rt.log, c.URL, c.TableID, rt.cfg.Membership.Universe).
		WithCache(rt.cache)
}

// Builder returns a membership builder; quality reports go to Postgres when configured
func (rt *runtime) Builder(ctx context.Context) (*s1_universe.Builder, error) {
	qcfg := quality.DefaultConfig()
	var minDate time.Time
	if rt.research != nil {
		qcfg = rt.research.Quality
		minDate = rt.research.MinDate()
	}

	b := s1_universe.NewBuilder(rt.store, quality.NewInspector(qcfg), rt.log).WithMinDate(minDate)
	if rt.db != nil {
		repo := quality.NewRepository(rt.db.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		b = b.WithReportSaver(repo)
	}
	return b, nil
}

// Resolver returns the ticker resolver with research overrides applied
func (rt *runtime) Resolver() (*tickers.Resolver, error) {
	var overrides []contracts.TickerTransition
	if rt.research != nil {
		overrides = rt.research.Tickers.Transitions
	}
	r := tickers.NewDefaultResolver(overrides...)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Tolerances returns research tolerance overrides (nil means defaults)
func (rt *runtime) Tolerances() completeness.Tolerances {
	if rt.research == nil {
		return nil
	}
	return rt.research.Completeness.ToleranceDays.Tolerances()
}

// PriceRanges returns the Postgres price store, or an error when no database is configured
func (rt *runtime) PriceRanges(ctx context.Context) (contracts.RangeSetProvider, error) {
	if rt.db == nil {
		return nil, fmt.Errorf("no price store: set DATABASE_URL or pass --actual")
	}
	repo := prices.NewRepository(rt.db.Pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

// Checker builds a completeness checker over ranges, with metrics when enabled
func (rt *runtime) Checker(ranges contracts.RangeSetProvider) *completeness.Checker {
	c := completeness.NewChecker(rt.Engine(), ranges, rt.Tolerances(), rt.log)
	if rt.registry != nil {
		if rt.metrics == nil {
			rt.metrics = completeness.NewMetrics(rt.registry)
		}
		c = c.WithMetrics(rt.metrics)
	}
	return c
}

// Workers returns the batch pool size (research config overrides env)
func (rt *runtime) Workers() int {
	if rt.research != nil && rt.research.Completeness.Workers > 0 {
		return rt.research.Completeness.Workers
	}
	return rt.cfg.Completeness.Workers
}

// HistoricalFallback reports whether historical queries may use current constituents
func (rt *runtime) HistoricalFallback() bool {
	return rt.cfg.Membership.HistoricalFallback
}
