package s1_universe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/spxlab/internal/contracts"
	"github.com/wonny/spxlab/pkg/database"
)

const membershipSchema = `
CREATE SCHEMA IF NOT EXISTS universe;

CREATE TABLE IF NOT EXISTS universe.membership_daily (
	universe   TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	trade_date DATE NOT NULL,
	PRIMARY KEY (universe, ticker, trade_date)
);

CREATE TABLE IF NOT EXISTS universe.membership_intervals (
	universe   TEXT NOT NULL,
	ticker     TEXT NOT NULL,
	start_date DATE NOT NULL,
	end_date   DATE NOT NULL,
	gvkey      BIGINT,
	PRIMARY KEY (universe, ticker, start_date),
	CHECK (start_date <= end_date)
);

CREATE INDEX IF NOT EXISTS idx_membership_intervals_range
	ON universe.membership_intervals (universe, start_date, end_date);

CREATE TABLE IF NOT EXISTS universe.membership_builds (
	universe   TEXT PRIMARY KEY,
	build_id   TEXT NOT NULL,
	manifest   JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// querier is what the table helpers need from a pool or a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// PostgresStore mirrors the membership tables into Postgres.
// Writes replace a universe's rows inside one transaction.
type PostgresStore struct {
	db       *database.DB
	universe string
}

// NewPostgresStore binds a store to one universe
func NewPostgresStore(db *database.DB, universe string) *PostgresStore {
	return &PostgresStore{db: db, universe: universe}
}

// Universe returns the bound universe name
func (r *PostgresStore) Universe() string { return r.universe }

// Location returns the interval table name
func (r *PostgresStore) Location() string { return "universe.membership_intervals" }

// EnsureSchema creates the membership tables if missing
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	return r.db.ApplySchema(ctx, "membership", membershipSchema)
}

// ReadIntervals loads the interval rows of the universe
func (r *PostgresStore) ReadIntervals(ctx context.Context) ([]contracts.MembershipInterval, error) {
	return r.readIntervals(ctx, r.db.Pool)
}

// ReadSnapshot loads intervals and manifest in one transaction.
// Both are committed together by CommitBuild, so the manifest id is the build id.
func (r *PostgresStore) ReadSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		intervals, err := r.readIntervals(ctx, tx)
		if err != nil {
			return err
		}
		snap = &Snapshot{Intervals: intervals}

		manifest, err := r.readManifest(ctx, tx)
		switch {
		case err == nil:
			snap.Manifest, snap.BuildID = manifest, manifest.BuildID
		case !errors.Is(err, ErrStoreNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *PostgresStore) readIntervals(ctx context.Context, q querier) ([]contracts.MembershipInterval, error) {
	query := `
		SELECT ticker, start_date, end_date, gvkey
		FROM universe.membership_intervals
		WHERE universe = $1
		ORDER BY ticker, start_date
	`

	rows, err := q.Query(ctx, query, r.universe)
	if err != nil {
		return nil, fmt.Errorf("query intervals: %w", err)
	}
	defer rows.Close()

	intervals := make([]contracts.MembershipInterval, 0)
	for rows.Next() {
		var iv contracts.MembershipInterval
		if err := rows.Scan(&iv.Ticker, &iv.StartDate, &iv.EndDate, &iv.GVKey); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		iv.StartDate = contracts.TruncateDay(iv.StartDate)
		iv.EndDate = contracts.TruncateDay(iv.EndDate)
		intervals = append(intervals, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intervals: %w", err)
	}

	if len(intervals) == 0 {
		return nil, fmt.Errorf("universe %s: %w", r.universe, ErrStoreNotFound)
	}
	return intervals, nil
}

// WriteIntervals replaces the universe's interval rows
func (r *PostgresStore) WriteIntervals(ctx context.Context, intervals []contracts.MembershipInterval) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		return r.replaceIntervals(ctx, tx, intervals)
	})
}

func (r *PostgresStore) replaceIntervals(ctx context.Context, q querier, intervals []contracts.MembershipInterval) error {
	if _, err := q.Exec(ctx, `DELETE FROM universe.membership_intervals WHERE universe = $1`, r.universe); err != nil {
		return fmt.Errorf("delete intervals: %w", err)
	}

	_, err := q.CopyFrom(ctx,
		pgx.Identifier{"universe", "membership_intervals"},
		[]string{"universe", "ticker", "start_date", "end_date", "gvkey"},
		pgx.CopyFromSlice(len(intervals), func(i int) ([]any, error) {
			iv := intervals[i]
			return []any{r.universe, iv.Ticker, iv.StartDate, iv.EndDate, iv.GVKey}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy intervals: %w", err)
	}
	return nil
}

// ReadDaily loads the daily rows of the universe
func (r *PostgresStore) ReadDaily(ctx context.Context) ([]contracts.MembershipRecord, error) {
	query := `
		SELECT ticker, trade_date
		FROM universe.membership_daily
		WHERE universe = $1
		ORDER BY trade_date, ticker
	`

	rows, err := r.db.Pool.Query(ctx, query, r.universe)
	if err != nil {
		return nil, fmt.Errorf("query daily: %w", err)
	}
	defer rows.Close()

	records := make([]contracts.MembershipRecord, 0)
	for rows.Next() {
		var rec contracts.MembershipRecord
		if err := rows.Scan(&rec.Ticker, &rec.Date); err != nil {
			return nil, fmt.Errorf("scan daily: %w", err)
		}
		rec.Date = contracts.TruncateDay(rec.Date)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate daily: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("universe %s daily: %w", r.universe, ErrStoreNotFound)
	}
	return records, nil
}

// WriteDaily replaces the universe's daily rows
func (r *PostgresStore) WriteDaily(ctx context.Context, records []contracts.MembershipRecord) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		return r.replaceDaily(ctx, tx, records)
	})
}

func (r *PostgresStore) replaceDaily(ctx context.Context, q querier, records []contracts.MembershipRecord) error {
	if _, err := q.Exec(ctx, `DELETE FROM universe.membership_daily WHERE universe = $1`, r.universe); err != nil {
		return fmt.Errorf("delete daily: %w", err)
	}

	_, err := q.CopyFrom(ctx,
		pgx.Identifier{"universe", "membership_daily"},
		[]string{"universe", "ticker", "trade_date"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return []any{r.universe, records[i].Ticker, records[i].Date}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy daily: %w", err)
	}
	return nil
}

// ReadManifest loads the last build manifest of the universe
func (r *PostgresStore) ReadManifest(ctx context.Context) (*Manifest, error) {
	return r.readManifest(ctx, r.db.Pool)
}

func (r *PostgresStore) readManifest(ctx context.Context, q querier) (*Manifest, error) {
	var raw []byte
	err := q.QueryRow(ctx,
		`SELECT manifest FROM universe.membership_builds WHERE universe = $1`, r.universe,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("universe %s manifest: %w", r.universe, ErrStoreNotFound)
		}
		return nil, fmt.Errorf("query manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// WriteManifest upserts the build manifest of the universe
func (r *PostgresStore) WriteManifest(ctx context.Context, m *Manifest) error {
	return r.upsertManifest(ctx, r.db.Pool, m)
}

// CommitBuild replaces daily rows, interval rows and manifest in one transaction
// ⭐ SSOT: 빌드 커밋 (daily + intervals + manifest)
func (r *PostgresStore) CommitBuild(ctx context.Context, b *Build) error {
	if b == nil || b.Manifest == nil {
		return errors.New("commit build: manifest is required")
	}
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if err := r.replaceDaily(ctx, tx, b.Daily); err != nil {
			return err
		}
		if err := r.replaceIntervals(ctx, tx, b.Intervals); err != nil {
			return err
		}
		return r.upsertManifest(ctx, tx, b.Manifest)
	})
}

func (r *PostgresStore) upsertManifest(ctx context.Context, q querier, m *Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	query := `
		INSERT INTO universe.membership_builds (universe, build_id, manifest, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (universe) DO UPDATE SET
			build_id = EXCLUDED.build_id,
			manifest = EXCLUDED.manifest,
			created_at = EXCLUDED.created_at
	`

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if _, err := q.Exec(ctx, query, r.universe, m.BuildID, raw, createdAt); err != nil {
		return fmt.Errorf("upsert manifest: %w", err)
	}
	return nil
}
