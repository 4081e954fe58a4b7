package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wonny/aegis-defense/internal/contracts"
	"github.com/wonny/aegis-defense/internal/metrics"
	"github.com/wonny/aegis-defense/internal/policy"
	"github.com/wonny/aegis-defense/internal/scheduler/jobs"
	"github.com/wonny/aegis-defense/internal/store"
	"github.com/wonny/aegis-defense/pkg/config"
	"github.com/wonny/aegis-defense/pkg/database"
	"github.com/wonny/aegis-defense/pkg/logger"
	"github.com/wonny/aegis-defense/pkg/redis"
)

const cachePrefix = "aegis-defense"

// app shared wiring for every command that touches storage
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *database.DB
	redis   *redis.Client
	policy  *policy.Config
	metrics *metrics.Registry
}

// loadConfig reads env config and applies global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if policyFile != "" {
		cfg.Defense.PolicyFile = policyFile
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg)

	pol, err := policy.Resolve(cfg.Defense)
	if err != nil {
		return nil, fmt.Errorf("resolve policy: %w", err)
	}

	db, err := database.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// Redis 장애 시 캐시/락 없이 진행
	rc, err := redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc = redis.Disabled()
	}

	return &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		redis:   rc,
		policy:  pol,
		metrics: metrics.NewRegistry(),
	}, nil
}

func (a *app) close() {
	_ = a.redis.Close()
	a.db.Close()
}

// classificationRepo Postgres repository, cached when Redis is enabled
func (a *app) classificationRepo() contracts.ClassificationRepository {
	repo := store.NewClassificationRepository(a.db.Pool)
	if !a.redis.Enabled() {
		return repo
	}
	return store.NewCachedClassificationRepository(repo, redis.NewCache(a.redis, cachePrefix), redis.TTLDaily, a.log)
}

func (a *app) backtestJob() (*jobs.DefenseBacktestJob, error) {
	host, _ := os.Hostname()
	token := fmt.Sprintf("%s:%d", host, os.Getpid())

	return jobs.NewDefenseBacktestJob(jobs.DefenseBacktestDeps{
		Prices:    store.NewPriceRepository(a.db.Pool),
		Overrides: store.NewOverrideRepository(a.db.Pool),
		Results:   a.classificationRepo(),
		Policy:    a.policy,
		Schedule:  a.cfg.Defense.Schedule,
		Metrics:   a.metrics,
		Lock:      redis.NewLock(a.redis, cachePrefix, "defense_backtest", token, 2*time.Hour),
		Logger:    a.log,
	})
}
