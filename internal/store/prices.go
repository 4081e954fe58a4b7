package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-defense/internal/contracts"
)

// PriceRepository reads closing prices and the active universe
// ⭐ SSOT: 가격 데이터 조회는 여기서만
type PriceRepository struct {
	pool *pgxpool.Pool
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(pool *pgxpool.Pool) *PriceRepository {
	return &PriceRepository{pool: pool}
}

// GetCloseHistory returns daily closes in [from, to] ordered by date
func (r *PriceRepository) GetCloseHistory(ctx context.Context, symbol string, from, to time.Time) ([]contracts.PricePoint, error) {
	query := `
		SELECT trade_date, close_price::float8
		FROM data.daily_prices
		WHERE symbol = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date
	`

	rows, err := r.pool.Query(ctx, query, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", symbol, err)
	}
	defer rows.Close()

	points := make([]contracts.PricePoint, 0, 256)
	for rows.Next() {
		var p contracts.PricePoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return points, nil
}

// GetUniverse returns active symbols ordered alphabetically
func (r *PriceRepository) GetUniverse(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT symbol FROM defense.universe
		WHERE is_active = TRUE
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query universe: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// OverrideRepository reads manual classification labels
type OverrideRepository struct {
	pool *pgxpool.Pool
}

// NewOverrideRepository creates a new override repository
func NewOverrideRepository(pool *pgxpool.Pool) *OverrideRepository {
	return &OverrideRepository{pool: pool}
}

// GetOverrides returns symbol -> label, empty labels are left out
func (r *OverrideRepository) GetOverrides(ctx context.Context) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT symbol, label FROM defense.overrides WHERE label <> ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var symbol, label string
		if err := rows.Scan(&symbol, &label); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides[symbol] = label
	}
	return overrides, rows.Err()
}

var (
	_ contracts.PriceHistoryRepository = (*PriceRepository)(nil)
	_ contracts.OverrideRepository     = (*OverrideRepository)(nil)
)
