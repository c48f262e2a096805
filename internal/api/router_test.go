package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/internal/api/handlers"
	"github.com/wonny/spxlab/internal/completeness"
	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/internal/s0_data/feed"
	"github.com/wonny/spxlab/internal/s0_data/quality"
	"github.com/wonny/spxlab/internal/s1_universe"
	"github.com/wonny/spxlab/internal/tickers"
	"github.com/wonny/spxlab/pkg/logger"
)

// AAPL always; AMD removed after 2015 and re-added in 2018; CBS until 2016 (data lives under PARA)
func seedStore(t *testing.T) *s1_universe.ParquetStore {
	t.Helper()

	snapshots := map[string][]int{
		"AAPL": {2015, 2016, 2017, 2018},
		"AMD":  {2015, 2018},
		"CBS":  {2015, 2016},
	}
	var records []contracts.MembershipRecord
	for ticker, years := range snapshots {
		for _, y := range years {
			records = append(records, contracts.MembershipRecord{Ticker: ticker, Date: contracts.Day(y, 6, 30)})
		}
	}

	store := s1_universe.NewParquetStore(t.TempDir(), "sp500", false)
	builder := s1_universe.NewBuilder(store, quality.NewInspector(quality.DefaultConfig()), logger.Nop())
	_, err := builder.Build(context.Background(), s1_universe.BuildInput{
		Feed:   &feed.MembershipFeed{Records: records, RawRows: len(records)},
		Source: "test",
	})
	require.NoError(t, err)
	return store
}

func newTestRouter(t *testing.T, reg *prometheus.Registry) http.Handler {
	t.Helper()
	log := logger.Nop()

	engine := s1_universe.NewEngine(seedStore(t), log)
	prices := completeness.StaticRanges{
		"AAPL": {contracts.NewDateRange(contracts.Day(2015, 6, 30), contracts.Day(2018, 6, 30))},
		"PARA": {contracts.NewDateRange(contracts.Day(2015, 6, 30), contracts.Day(2016, 6, 30))},
	}
	checker := completeness.NewChecker(engine, prices, nil, log)
	resolver := tickers.NewDefaultResolver(
		contracts.TickerTransition{Old: "LOOPA", New: "LOOPB"},
		contracts.TickerTransition{Old: "LOOPB", New: "LOOPA"},
	)

	return NewRouter(Handlers{
		Universe:     handlers.NewUniverseHandler(engine, false, log),
		Completeness: handlers.NewCompletenessHandler(checker, resolver, log),
		Tickers:      handlers.NewTickerHandler(resolver, log),
	}, reg, log)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func get(t *testing.T, h http.Handler, path string) (int, envelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestRouter_Health(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(t, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestUniverseEndpoints(t *testing.T) {
	h := newTestRouter(t, nil)

	t.Run("members as of", func(t *testing.T) {
		code, env := get(t, h, "/api/universe/members?date=2016-06-30")
		require.Equal(t, http.StatusOK, code)

		var u contracts.Universe
		require.NoError(t, json.Unmarshal(env.Data, &u))
		assert.Equal(t, []string{"AAPL", "CBS"}, u.Tickers)
		assert.True(t, u.MembershipKnown)
	})

	t.Run("historical", func(t *testing.T) {
		code, env := get(t, h, "/api/universe/historical?start=2017-01-01&end=2018-12-31")
		require.Equal(t, http.StatusOK, code)

		var u contracts.Universe
		require.NoError(t, json.Unmarshal(env.Data, &u))
		assert.Equal(t, []string{"AAPL", "AMD"}, u.Tickers)
	})

	t.Run("intervals", func(t *testing.T) {
		code, env := get(t, h, "/api/universe/intervals/amd")
		require.Equal(t, http.StatusOK, code)

		var body struct {
			Ticker    string                         `json:"ticker"`
			Intervals []contracts.MembershipInterval `json:"intervals"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &body))
		assert.Equal(t, "AMD", body.Ticker)
		assert.Len(t, body.Intervals, 2)
	})

	t.Run("bad requests", func(t *testing.T) {
		tests := []struct {
			path string
			code int
		}{
			{"/api/universe/members?date=06-30-2016", http.StatusBadRequest},
			{"/api/universe/historical?start=2017-01-01", http.StatusBadRequest},
			{"/api/universe/historical?start=2018-01-01&end=2017-01-01", http.StatusBadRequest},
			{"/api/universe/intervals/ZZZZ", http.StatusNotFound},
		}
		for _, tc := range tests {
			code, env := get(t, h, tc.path)
			assert.Equal(t, tc.code, code, tc.path)
			assert.False(t, env.Success, tc.path)
			assert.NotEmpty(t, env.Error, tc.path)
		}
	})

	t.Run("manifest", func(t *testing.T) {
		code, env := get(t, h, "/api/universe/manifest")
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, string(env.Data), `"build_id"`)
	})
}

func TestUniverseEndpoints_MissingStore(t *testing.T) {
	log := logger.Nop()
	engine := s1_universe.NewEngine(s1_universe.NewParquetStore(t.TempDir(), "sp500", false), log)
	h := NewRouter(Handlers{Universe: handlers.NewUniverseHandler(engine, false, log)}, nil, log)

	code, env := get(t, h, "/api/universe/members?date=2016-06-30")
	require.Equal(t, http.StatusOK, code)
	var u contracts.Universe
	require.NoError(t, json.Unmarshal(env.Data, &u))
	assert.False(t, u.MembershipKnown)
	assert.Empty(t, u.Tickers)

	code, _ = get(t, h, "/api/universe/historical?start=2017-01-01&end=2018-12-31")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = get(t, h, "/api/universe/manifest")
	assert.Equal(t, http.StatusNotFound, code)
}

type completenessBody struct {
	Kind         string                `json:"kind"`
	DataSymbol   string                `json:"data_symbol"`
	Status       contracts.Status      `json:"status"`
	MissingDays  int                   `json:"missing_days"`
	FetchWindows []contracts.DateRange `json:"fetch_windows"`
}

func TestCompletenessEndpoint(t *testing.T) {
	h := newTestRouter(t, nil)
	window := "start=2015-06-30&end=2018-06-30"

	tests := []struct {
		name       string
		path       string
		kind       string
		status     contracts.Status
		dataSymbol string
	}{
		{"complete", "/api/completeness/AAPL?" + window, "single", contracts.StatusComplete, "AAPL"},
		{"re-added ticker", "/api/completeness/AMD?" + window + "&frequency=daily", "multi", contracts.StatusMissing, "AMD"},
		{"renamed without resolve", "/api/completeness/CBS?" + window, "single", contracts.StatusMissing, "CBS"},
		{"renamed with resolve", "/api/completeness/cbs?" + window + "&resolve=true", "single", contracts.StatusComplete, "PARA"},
		{"span mode collapses", "/api/completeness/AMD?" + window + "&span=true", "single", contracts.StatusMissing, "AMD"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, env := get(t, h, tc.path)
			require.Equal(t, http.StatusOK, code, env.Error)

			var body completenessBody
			require.NoError(t, json.Unmarshal(env.Data, &body))
			assert.Equal(t, tc.kind, body.Kind)
			assert.Equal(t, tc.status, body.Status)
			assert.Equal(t, tc.dataSymbol, body.DataSymbol)
			if tc.status == contracts.StatusComplete {
				assert.Empty(t, body.FetchWindows)
			} else {
				assert.NotEmpty(t, body.FetchWindows)
			}
		})
	}

	t.Run("bad requests", func(t *testing.T) {
		for _, path := range []string{
			"/api/completeness/AAPL",
			"/api/completeness/AAPL?" + window + "&frequency=hourly",
			"/api/completeness/AAPL?" + window + "&span=maybe",
		} {
			code, _ := get(t, h, path)
			assert.Equal(t, http.StatusBadRequest, code, path)
		}

		code, _ := get(t, h, "/api/completeness/LOOPA?"+window+"&resolve=true")
		assert.Equal(t, http.StatusUnprocessableEntity, code)
	})
}

func TestTickerEndpoints(t *testing.T) {
	h := newTestRouter(t, nil)

	code, env := get(t, h, "/api/tickers/fb/resolve")
	require.Equal(t, http.StatusOK, code)
	var res tickers.Resolution
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "META", res.Current)
	assert.Equal(t, []string{"FB", "META"}, res.Chain)

	code, env = get(t, h, "/api/tickers/LIFE/resolve")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Delisted)

	code, env = get(t, h, "/api/tickers/LOOPA/resolve")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, env.Error, "LOOPA -> LOOPB -> LOOPA")

	code, env = get(t, h, "/api/tickers/transitions")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"FB"`)
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newTestRouter(t, reg)

	get(t, h, "/api/tickers/fb/resolve")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `spxlab_http_requests_total{code="200",route="/api/tickers/{symbol}/resolve"} 1`)
}
