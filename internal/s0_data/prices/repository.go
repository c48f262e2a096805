package prices

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/spxlab/internal/contracts"
)

const barsSchema = `
CREATE SCHEMA IF NOT EXISTS prices;

CREATE TABLE IF NOT EXISTS prices.bars (
	ticker      TEXT NOT NULL,
	frequency   TEXT NOT NULL,
	bar_date    DATE NOT NULL,
	open_price  DOUBLE PRECISION,
	high_price  DOUBLE PRECISION,
	low_price   DOUBLE PRECISION,
	close_price DOUBLE PRECISION,
	volume      BIGINT,
	PRIMARY KEY (ticker, frequency, bar_date)
);
`

// Repository reports what price history is already stored.
// It implements contracts.DataRangeProvider and contracts.RangeSetProvider; it never fetches.
// ⭐ SSOT: 가격 저장소 범위 조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new price range repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureSchema creates the bars table if missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, barsSchema); err != nil {
		return fmt.Errorf("ensure prices schema: %w", err)
	}
	return nil
}

// GetExistingDateRange returns [min, max] bar date, or nil when the ticker has no bars
func (r *Repository) GetExistingDateRange(ctx context.Context, ticker string, freq contracts.Frequency) (*contracts.DateRange, error) {
	query := `
		SELECT MIN(bar_date), MAX(bar_date)
		FROM prices.bars
		WHERE ticker = $1 AND frequency = $2
	`

	var start, end *time.Time
	if err := r.pool.QueryRow(ctx, query, ticker, string(freq)).Scan(&start, &end); err != nil {
		return nil, fmt.Errorf("query date range %s/%s: %w", ticker, freq, err)
	}
	if start == nil || end == nil {
		return nil, nil
	}

	rng := contracts.NewDateRange(*start, *end)
	return &rng, nil
}

// GetDataRanges returns the contiguous islands of stored bars in date order.
// Islands split only where a whole session has no bar (contracts.GroupIslands),
// so weekends never split daily bars and short weeks never split weekly bars.
func (r *Repository) GetDataRanges(ctx context.Context, ticker string, freq contracts.Frequency) ([]contracts.DateRange, error) {
	if _, err := contracts.ParseFrequency(string(freq)); err != nil {
		return nil, err
	}

	query := `
		SELECT bar_date
		FROM prices.bars
		WHERE ticker = $1 AND frequency = $2
		ORDER BY bar_date
	`

	rows, err := r.pool.Query(ctx, query, ticker, string(freq))
	if err != nil {
		return nil, fmt.Errorf("query bars %s/%s: %w", ticker, freq, err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan bar date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return contracts.GroupIslands(freq, dates), nil
}

// Bar is one stored price row, used to seed the table
type Bar struct {
	Ticker string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// SaveBars upserts bars for one frequency
func (r *Repository) SaveBars(ctx context.Context, freq contracts.Frequency, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	query := `
		INSERT INTO prices.bars (ticker, frequency, bar_date, open_price, high_price, low_price, close_price, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, frequency, bar_date) DO UPDATE SET
			open_price = EXCLUDED.open_price,
			high_price = EXCLUDED.high_price,
			low_price = EXCLUDED.low_price,
			close_price = EXCLUDED.close_price,
			volume = EXCLUDED.volume
	`

	for _, b := range bars {
		if _, err := r.pool.Exec(ctx, query,
			b.Ticker, string(freq), b.Date, b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return fmt.Errorf("save bar %s %s: %w", b.Ticker, b.Date.Format(contracts.DateLayout), err)
		}
	}
	return nil
}
