package quality

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/spxlab/internal/contracts"
)

const reportSchema = `
CREATE SCHEMA IF NOT EXISTS audit;

CREATE TABLE IF NOT EXISTS audit.membership_quality_reports (
	id              BIGSERIAL PRIMARY KEY,
	universe        TEXT NOT NULL,
	generated_at    TIMESTAMPTZ NOT NULL,
	passed          BOOLEAN NOT NULL,
	total_intervals INTEGER NOT NULL,
	conflicts       INTEGER NOT NULL,
	gvkey_coverage  DOUBLE PRECISION NOT NULL,
	report          JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_membership_quality_universe
	ON audit.membership_quality_reports (universe, generated_at DESC);
`

// Repository handles quality report persistence
// ⭐ SSOT: 구성종목 품질 리포트 저장/조회
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new quality repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the report table if missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, reportSchema); err != nil {
		return fmt.Errorf("ensure quality schema: %w", err)
	}
	return nil
}

// SaveReport appends a quality report
func (r *Repository) SaveReport(ctx context.Context, report *contracts.MembershipQualityReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal quality report: %w", err)
	}

	query := `
		INSERT INTO audit.membership_quality_reports (
			universe, generated_at, passed, total_intervals,
			conflicts, gvkey_coverage, report
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.pool.Exec(ctx, query,
		report.Universe,
		report.GeneratedAt,
		report.Passed(),
		report.TotalIntervals,
		len(report.Conflicts),
		report.GVKeyCoverage,
		raw,
	)
	if err != nil {
		return fmt.Errorf("save quality report: %w", err)
	}

	return nil
}

// GetLatest retrieves the most recent report of a universe
func (r *Repository) GetLatest(ctx context.Context, universe string) (*contracts.MembershipQualityReport, error) {
	query := `
		SELECT report
		FROM audit.membership_quality_reports
		WHERE universe = $1
		ORDER BY generated_at DESC
		LIMIT 1
	`

	var raw []byte
	if err := r.pool.QueryRow(ctx, query, universe).Scan(&raw); err != nil {
		return nil, fmt.Errorf("get latest quality report: %w", err)
	}

	var report contracts.MembershipQualityReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("unmarshal quality report: %w", err)
	}
	return &report, nil
}
