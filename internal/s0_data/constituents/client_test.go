package constituents

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/pkg/config"
	"github.com/wonny/spxlab/pkg/httputil"
	"github.com/wonny/spxlab/pkg/logger"
	"github.com/wonny/spxlab/pkg/redis"
)

const samplePage = `<html><body>
<table class="wikitable" id="other"><tr><th>Ticker</th></tr><tr><td>ZZZ</td></tr></table>
<table class="wikitable sortable" id="constituents">
<tr><th>Symbol</th><th>Security</th><th>GICS Sector</th><th>GICS Sub-Industry</th><th>Date added</th></tr>
<tr><td><a href="#">MMM</a></td><td>3M</td><td>Industrials</td><td>Conglomerates</td><td>1957-03-04</td></tr>
<tr><td><a href="#">aapl</a></td><td>Apple Inc.</td><td>Information Technology</td><td>Hardware</td><td>1982-11-30</td></tr>
<tr><td><a href="#">AMD</a></td><td>Advanced Micro Devices</td><td>Information Technology</td><td>Semiconductors</td><td>2017-03-20</td></tr>
<tr><td>AMD</td><td>duplicate row</td><td></td><td></td><td></td></tr>
</table>
</body></html>`

func TestParseTable(t *testing.T) {
	rows, err := ParseTable([]byte(samplePage), "constituents")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "MMM", rows[0].Symbol)
	assert.Equal(t, "AAPL", rows[1].Symbol)
	assert.Equal(t, "Apple Inc.", rows[1].Name)
	assert.Equal(t, "Information Technology", rows[2].Sector)
	require.NotNil(t, rows[2].DateAdded)
	assert.Equal(t, 2017, rows[2].DateAdded.Year())
}

func TestParseTable_Missing(t *testing.T) {
	_, err := ParseTable([]byte(`<html><body><p>nothing</p></body></html>`), "constituents")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestClient_CurrentMembers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	cfg := &config.Config{Env: "test", LogLevel: "error"}
	httpClient := httputil.New(cfg, logger.Nop()).DisableRetry()

	rdb, err := redis.New(context.Background(), cfg) // disabled: cache is a pass-through
	require.NoError(t, err)

	client := NewClient(httpClient, logger.Nop(), server.URL, "constituents", "sp500").
		WithCache(redis.NewCache(rdb, "spxlab"))

	symbols, err := client.CurrentMembers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "AMD", "MMM"}, symbols)
}

func TestClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	cfg := &config.Config{Env: "test", LogLevel: "error"}
	client := NewClient(httputil.New(cfg, logger.Nop()).DisableRetry(), logger.Nop(), server.URL, "constituents", "sp500")

	_, err := client.CurrentMembers(context.Background())
	var statusErr *httputil.StatusError
	assert.ErrorAs(t, err, &statusErr)
}
