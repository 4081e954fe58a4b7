package contracts

import (
	"context"
	"time"
)

// PriceHistoryRepository provides raw closing-price histories
// ⭐ SSOT: 엔진 외부에서 가격 데이터를 로드하는 인터페이스
type PriceHistoryRepository interface {
	GetCloseHistory(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)
	GetUniverse(ctx context.Context) ([]string, error)
}

// OverrideRepository provides manual classification overrides
// Empty labels mean "no override".
type OverrideRepository interface {
	GetOverrides(ctx context.Context) (map[string]string, error)
}

// ClassificationRepository persists backtest results keyed by run date and symbol
type ClassificationRepository interface {
	SaveResult(ctx context.Context, result *BacktestResult, policyHash string) error
	GetLatestResult(ctx context.Context) (*BacktestResult, error)
	GetClassification(ctx context.Context, symbol string) (*ClassificationRecord, time.Time, error)
}
