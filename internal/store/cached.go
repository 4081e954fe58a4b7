package store

import (
	"context"
	"time"

	"github.com/wonny/aegis-defense/internal/contracts"
	"github.com/wonny/aegis-defense/pkg/logger"
	"github.com/wonny/aegis-defense/pkg/redis"
)

// Cache JSON cache used by CachedClassificationRepository (*redis.Cache)
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePattern(ctx context.Context, pattern string) error
}

// cachedClassification cache payload for a single symbol
type cachedClassification struct {
	Record  contracts.ClassificationRecord `json:"record"`
	RunDate time.Time                      `json:"run_date"`
}

// CachedClassificationRepository serves reads from cache and invalidates on save
// 캐시 오류는 경고만 남기고 DB 결과로 진행
type CachedClassificationRepository struct {
	inner  contracts.ClassificationRepository
	cache  Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedClassificationRepository wraps inner with cache
func NewCachedClassificationRepository(inner contracts.ClassificationRepository, cache Cache, ttl time.Duration, log *logger.Logger) *CachedClassificationRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedClassificationRepository{inner: inner, cache: cache, ttl: ttl, logger: log}
}

// SaveResult writes through and drops every cached read
func (r *CachedClassificationRepository) SaveResult(ctx context.Context, result *contracts.BacktestResult, policyHash string) error {
	if err := r.inner.SaveResult(ctx, result, policyHash); err != nil {
		return err
	}

	if err := r.cache.Delete(ctx, redis.LatestResultKey()); err != nil {
		r.logger.WithError(err).Warn("Failed to invalidate latest result cache")
	}
	if err := r.cache.DeletePattern(ctx, redis.ClassificationKey("*")); err != nil {
		r.logger.WithError(err).Warn("Failed to invalidate classification cache")
	}
	return nil
}

// GetLatestResult cache-aside read of the latest run
func (r *CachedClassificationRepository) GetLatestResult(ctx context.Context) (*contracts.BacktestResult, error) {
	var cached contracts.BacktestResult
	found, err := r.cache.Get(ctx, redis.LatestResultKey(), &cached)
	if err != nil {
		r.logger.WithError(err).Warn("Latest result cache read failed")
	}
	if found {
		return &cached, nil
	}

	result, err := r.inner.GetLatestResult(ctx)
	if err != nil {
		return nil, err
	}

	if err := r.cache.Set(ctx, redis.LatestResultKey(), result, r.ttl); err != nil {
		r.logger.WithError(err).Warn("Latest result cache write failed")
	}
	return result, nil
}

// GetClassification cache-aside read of one symbol
func (r *CachedClassificationRepository) GetClassification(ctx context.Context, symbol string) (*contracts.ClassificationRecord, time.Time, error) {
	key := redis.ClassificationKey(symbol)

	var cached cachedClassification
	found, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		r.logger.WithError(err).WithField("symbol", symbol).Warn("Classification cache read failed")
	}
	if found {
		return &cached.Record, cached.RunDate, nil
	}

	rec, runDate, err := r.inner.GetClassification(ctx, symbol)
	if err != nil {
		return nil, time.Time{}, err
	}

	if err := r.cache.Set(ctx, key, cachedClassification{Record: *rec, RunDate: runDate}, r.ttl); err != nil {
		r.logger.WithError(err).WithField("symbol", symbol).Warn("Classification cache write failed")
	}
	return rec, runDate, nil
}

var (
	_ contracts.ClassificationRepository = (*CachedClassificationRepository)(nil)
	_ Cache                              = (*redis.Cache)(nil)
)
