package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-defense/pkg/config"
)

func TestMigrationNames(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "migrations/001_defense.sql", names[0])
}

func TestNew_InvalidURL(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{URL: "://bad", MaxConns: 1, MinConns: 0}}
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_Integration(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	status, err := db.HealthCheck(ctx)
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Equal(t, int32(cfg.Database.MaxConns), status.Stats.MaxConns)

	applied, err := db.Migrate(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, applied)

	// idempotent
	_, err = db.Migrate(ctx)
	assert.NoError(t, err)
}
