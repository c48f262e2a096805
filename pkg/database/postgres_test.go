package database

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/spxlab/pkg/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	if testing.Short() || os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestNew_InvalidURL(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:            "invalid://url",
			MaxConns:       4,
			ConnectTimeout: time.Second,
		},
	}

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database url")
}

func TestNew_Unreachable(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			URL:            "postgres://nobody@127.0.0.1:1/none?sslmode=disable",
			MaxConns:       1,
			ConnectTimeout: 200 * time.Millisecond,
		},
	}

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestClose_NilSafe(t *testing.T) {
	var db *DB
	assert.NotPanics(t, db.Close)
	assert.NotPanics(t, (&DB{}).Close)
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Positive(t, status.Stats.MaxConns)
}

func TestApplySchemaAndInTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ddl := `CREATE TABLE IF NOT EXISTS spxlab_tx_check (id INT PRIMARY KEY)`
	require.NoError(t, db.ApplySchema(ctx, "tx_check", ddl))
	require.NoError(t, db.ApplySchema(ctx, "tx_check", ddl), "DDL must be idempotent")
	t.Cleanup(func() { _, _ = db.Pool.Exec(context.Background(), `DROP TABLE IF EXISTS spxlab_tx_check`) })

	// a failing fn rolls back its inserts
	err := db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO spxlab_tx_check (id) VALUES (1)`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO spxlab_tx_check (id) VALUES (1)`)
		return err
	})
	require.Error(t, err)

	var n int
	require.NoError(t, db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM spxlab_tx_check`).Scan(&n))
	assert.Equal(t, 0, n)

	err = db.ApplySchema(ctx, "broken", `CREATE TABLE`)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "apply broken schema"))
}

func TestPoolCollector(t *testing.T) {
	db := openTestDB(t)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewPoolCollector(db)))

	count, err := testutil.GatherAndCount(reg, "spxlab_db_max_conns")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
