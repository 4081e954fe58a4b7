package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-defense/internal/contracts"
	"github.com/wonny/aegis-defense/pkg/config"
	"github.com/wonny/aegis-defense/pkg/database"
)

func TestEncodeRun_EmptyCollections(t *testing.T) {
	row, err := encodeRun(&contracts.BacktestResult{})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(row.errors))
	assert.JSONEq(t, `{}`, string(row.skipped))
}

func TestMetricsEncoding(t *testing.T) {
	raw, err := encodeMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	m, err := decodeMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	ratio := 2.5
	raw, err = encodeMetrics(&contracts.TickerMetrics{DownsideCapture: 0.4, CaptureRatio: &ratio, EpisodesMeasured: 7})
	require.NoError(t, err)
	m, err = decodeMetrics(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.4, m.DownsideCapture)
	assert.Nil(t, m.UpsideCapture)
	require.NotNil(t, m.CaptureRatio)
	assert.Equal(t, 2.5, *m.CaptureRatio)
}

func TestBuildRecord_UnknownClass(t *testing.T) {
	_, err := buildRecord("BOND", "backtest", nil)
	assert.Error(t, err)
}

func newIntegrationDB(t *testing.T) *database.DB {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Migrate(context.Background())
	require.NoError(t, err)
	return db
}

func TestClassificationRepository_Integration(t *testing.T) {
	db := newIntegrationDB(t)
	repo := NewClassificationRepository(db.Pool)
	ctx := context.Background()

	runDate := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(ctx, "DELETE FROM defense.runs WHERE run_date = $1", runDate)
	})

	result := sampleResult(runDate, contracts.ClassHedge)
	result.Errors = []string{"ZZZ: override: unknown defense class \"BOND\""}
	result.Skipped["ZZZ"] = contracts.SkipFailed
	require.NoError(t, repo.SaveResult(ctx, result, "abc"))

	// re-saving the same run replaces it
	result.Classifications["TLT"] = contracts.ClassificationRecord{Classification: contracts.ClassDefensive, Source: contracts.SourceOverride}
	require.NoError(t, repo.SaveResult(ctx, result, "abc"))

	latest, err := repo.GetLatestResult(ctx)
	require.NoError(t, err)
	assert.True(t, latest.RunDate.Equal(runDate))
	assert.Len(t, latest.Classifications, 2)
	assert.Equal(t, contracts.ClassDefensive, latest.Classifications["TLT"].Classification)
	assert.Equal(t, result.Errors, latest.Errors)
	assert.Equal(t, contracts.SkipFailed, latest.Skipped["ZZZ"])

	rec, got, err := repo.GetClassification(ctx, "PHYS")
	require.NoError(t, err)
	assert.Equal(t, contracts.ClassHedge, rec.Classification)
	assert.Nil(t, rec.Metrics)
	assert.True(t, got.Equal(runDate))

	_, _, err = repo.GetClassification(ctx, "NOT-A-SYMBOL")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPriceRepository_Integration(t *testing.T) {
	db := newIntegrationDB(t)
	repo := NewPriceRepository(db.Pool)
	ctx := context.Background()

	const symbol = "ZZTEST"
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(ctx, "DELETE FROM data.daily_prices WHERE symbol = $1", symbol)
	})

	for i, c := range []float64{100, 101.5, 99.25} {
		_, err := db.Pool.Exec(ctx,
			"INSERT INTO data.daily_prices (symbol, trade_date, close_price) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
			symbol, time.Date(2024, 1, 2+i, 0, 0, 0, 0, time.UTC), c)
		require.NoError(t, err)
	}

	points, err := repo.GetCloseHistory(ctx, symbol,
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, 101.5, points[0].Close)
	assert.Equal(t, 99.25, points[1].Close)
}
