package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-defense/internal/contracts"
)

// ClassificationRepository persists backtest runs and their classifications
// ⭐ SSOT: 분류 결과 저장/조회는 여기서만
type ClassificationRepository struct {
	pool *pgxpool.Pool
}

// NewClassificationRepository creates a new classification repository
func NewClassificationRepository(pool *pgxpool.Pool) *ClassificationRepository {
	return &ClassificationRepository{pool: pool}
}

// runRow defense.runs columns other than the key
type runRow struct {
	errors  []byte
	skipped []byte
}

func encodeRun(result *contracts.BacktestResult) (runRow, error) {
	errs := result.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return runRow{}, fmt.Errorf("marshal errors: %w", err)
	}

	skipped := result.Skipped
	if skipped == nil {
		skipped = map[string]contracts.SkipReason{}
	}
	skippedJSON, err := json.Marshal(skipped)
	if err != nil {
		return runRow{}, fmt.Errorf("marshal skipped: %w", err)
	}
	return runRow{errors: errJSON, skipped: skippedJSON}, nil
}

// encodeMetrics nil metrics (override) stay SQL NULL
func encodeMetrics(m *contracts.TickerMetrics) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodeMetrics(data []byte) (*contracts.TickerMetrics, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m contracts.TickerMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return &m, nil
}

// SaveResult replaces the run stored for result.RunDate in one transaction
func (r *ClassificationRepository) SaveResult(ctx context.Context, result *contracts.BacktestResult, policyHash string) error {
	row, err := encodeRun(result)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO defense.runs (
			run_date, tickers_processed, tickers_skipped, benchmark_drawdown_months,
			errors, skipped, policy_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (run_date) DO UPDATE SET
			tickers_processed = EXCLUDED.tickers_processed,
			tickers_skipped = EXCLUDED.tickers_skipped,
			benchmark_drawdown_months = EXCLUDED.benchmark_drawdown_months,
			errors = EXCLUDED.errors,
			skipped = EXCLUDED.skipped,
			policy_hash = EXCLUDED.policy_hash,
			created_at = NOW()
	`, result.RunDate, result.TickersProcessed, result.TickersSkipped,
		result.BenchmarkDrawdownMonths, row.errors, row.skipped, policyHash)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	if _, err := tx.Exec(ctx, "DELETE FROM defense.classifications WHERE run_date = $1", result.RunDate); err != nil {
		return fmt.Errorf("failed to delete old classifications: %w", err)
	}

	batch := &pgx.Batch{}
	for symbol, rec := range result.Classifications {
		metrics, err := encodeMetrics(rec.Metrics)
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		batch.Queue(`
			INSERT INTO defense.classifications (run_date, symbol, classification, source, metrics)
			VALUES ($1, $2, $3, $4, $5)
		`, result.RunDate, symbol, string(rec.Classification), string(rec.Source), metrics)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert classifications: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetLatestResult loads the most recent run with all classifications
func (r *ClassificationRepository) GetLatestResult(ctx context.Context) (*contracts.BacktestResult, error) {
	var (
		runDate     time.Time
		processed   int
		skippedN    int
		ddMonths    int
		errJSON     []byte
		skippedJSON []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT run_date, tickers_processed, tickers_skipped, benchmark_drawdown_months, errors, skipped
		FROM defense.runs
		ORDER BY run_date DESC
		LIMIT 1
	`).Scan(&runDate, &processed, &skippedN, &ddMonths, &errJSON, &skippedJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	result := contracts.NewBacktestResult(runDate)
	result.TickersProcessed = processed
	result.TickersSkipped = skippedN
	result.BenchmarkDrawdownMonths = ddMonths
	if err := json.Unmarshal(errJSON, &result.Errors); err != nil {
		return nil, fmt.Errorf("unmarshal errors: %w", err)
	}
	if err := json.Unmarshal(skippedJSON, &result.Skipped); err != nil {
		return nil, fmt.Errorf("unmarshal skipped: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT symbol, classification, source, metrics
		FROM defense.classifications
		WHERE run_date = $1
	`, runDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query classifications: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		symbol, rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result.Classifications[symbol] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

// GetClassification returns symbol's record from the latest run only
// 최신 run에서 스킵된 종목은 과거 분류를 돌려주지 않음
func (r *ClassificationRepository) GetClassification(ctx context.Context, symbol string) (*contracts.ClassificationRecord, time.Time, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT c.run_date, c.classification, c.source, c.metrics
		FROM defense.classifications c
		WHERE c.symbol = $1
		  AND c.run_date = (SELECT MAX(run_date) FROM defense.runs)
	`, symbol)

	var (
		runDate       time.Time
		class, source string
		metrics       []byte
	)
	err := row.Scan(&runDate, &class, &source, &metrics)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to query classification: %w", err)
	}

	rec, err := buildRecord(class, source, metrics)
	if err != nil {
		return nil, time.Time{}, err
	}
	return &rec, runDate, nil
}

func scanRecord(rows pgx.Rows) (string, contracts.ClassificationRecord, error) {
	var (
		symbol, class, source string
		metrics               []byte
	)
	if err := rows.Scan(&symbol, &class, &source, &metrics); err != nil {
		return "", contracts.ClassificationRecord{}, fmt.Errorf("failed to scan classification: %w", err)
	}
	rec, err := buildRecord(class, source, metrics)
	return symbol, rec, err
}

func buildRecord(class, source string, metrics []byte) (contracts.ClassificationRecord, error) {
	dc, err := contracts.ParseDefenseClass(class)
	if err != nil {
		return contracts.ClassificationRecord{}, err
	}
	m, err := decodeMetrics(metrics)
	if err != nil {
		return contracts.ClassificationRecord{}, err
	}
	return contracts.ClassificationRecord{
		Classification: dc,
		Metrics:        m,
		Source:         contracts.Source(source),
	}, nil
}

var _ contracts.ClassificationRepository = (*ClassificationRepository)(nil)
