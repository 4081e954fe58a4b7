package contracts

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Price / Return Series
// =============================================================================

// PricePoint is a single raw closing-price observation
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// ReturnPoint is one month of a monthly return series
// Month is always the first day of the month in UTC.
type ReturnPoint struct {
	Month  time.Time `json:"month"`
	Return float64   `json:"return"`
}

// =============================================================================
// Defense Class
// =============================================================================

// DefenseClass ordinal bucket of downside capture
// ⭐ SSOT: 방어 등급 라벨은 여기서만 정의
type DefenseClass string

const (
	ClassHedge     DefenseClass = "HEDGE"     // DC < 0
	ClassDefensive DefenseClass = "DEFENSIVE" // 0 <= DC < 0.6
	ClassModerate  DefenseClass = "MODERATE"  // 0.6 <= DC < 1.0
	ClassCyclical  DefenseClass = "CYCLICAL"  // 1.0 <= DC < 1.5
	ClassAmplifier DefenseClass = "AMPLIFIER" // DC >= 1.5
)

// DefenseClasses lists every class from most to least defensive
func DefenseClasses() []DefenseClass {
	return []DefenseClass{ClassHedge, ClassDefensive, ClassModerate, ClassCyclical, ClassAmplifier}
}

// ParseDefenseClass parses a label case-insensitively
func ParseDefenseClass(label string) (DefenseClass, error) {
	normalized := DefenseClass(strings.ToUpper(strings.TrimSpace(label)))
	for _, c := range DefenseClasses() {
		if c == normalized {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown defense class %q", label)
}

// Valid reports whether c is one of the five classes
func (c DefenseClass) Valid() bool {
	for _, known := range DefenseClasses() {
		if c == known {
			return true
		}
	}
	return false
}

// RegimeAdjustment conviction score bias applied by the scoring engine
// during elevated-volatility regimes. The scoring engine decides when.
func (c DefenseClass) RegimeAdjustment() int {
	switch c {
	case ClassHedge:
		return 5
	case ClassDefensive:
		return 3
	case ClassCyclical:
		return -3
	case ClassAmplifier:
		return -5
	default:
		return 0
	}
}

// =============================================================================
// Metrics / Records / Result
// =============================================================================

// TickerMetrics capture/risk statistics for one security over benchmark drawdowns
// All ratios are rounded to 4 decimal places.
type TickerMetrics struct {
	DownsideCapture   float64  `json:"downside_capture"`
	UpsideCapture     *float64 `json:"upside_capture"`
	CaptureRatio      *float64 `json:"capture_ratio"`
	WinRateInDrawdown float64  `json:"win_rate_in_drawdown"`
	MaxDrawdown       float64  `json:"max_drawdown"`
	EpisodesMeasured  int      `json:"episodes_measured"`
}

// Source tells where a classification came from
type Source string

const (
	SourceOverride Source = "override"
	SourceBacktest Source = "backtest"
)

// SkipReason explains why a security produced no classification
type SkipReason string

const (
	SkipNone                  SkipReason = ""
	SkipInsufficientHistory   SkipReason = "insufficient_history"
	SkipInsufficientOverlap   SkipReason = "insufficient_overlap"
	SkipInsufficientDrawdowns SkipReason = "insufficient_drawdown_months"
	SkipFlatBenchmark         SkipReason = "benchmark_flat_in_drawdown"
	SkipFailed                SkipReason = "failed"
)

// ClassificationRecord classification for one security
type ClassificationRecord struct {
	Classification DefenseClass   `json:"classification"`
	Metrics        *TickerMetrics `json:"metrics"`
	Source         Source         `json:"source"`
}

// BacktestResult aggregate output of one backtest run
// ⭐ 호출자가 저장 책임을 가짐 (엔진은 저장하지 않음)
type BacktestResult struct {
	RunDate                 time.Time                       `json:"run_date"`
	Classifications         map[string]ClassificationRecord `json:"classifications"`
	TickersProcessed        int                             `json:"tickers_processed"`
	TickersSkipped          int                             `json:"tickers_skipped"`
	BenchmarkDrawdownMonths int                             `json:"benchmark_drawdown_months"`
	Errors                  []string                        `json:"errors"`
	Skipped                 map[string]SkipReason           `json:"skipped,omitempty"`
}

// NewBacktestResult creates an empty result stamped with runDate
func NewBacktestResult(runDate time.Time) *BacktestResult {
	return &BacktestResult{
		RunDate:         runDate,
		Classifications: make(map[string]ClassificationRecord),
		Errors:          make([]string, 0),
		Skipped:         make(map[string]SkipReason),
	}
}

// ClassCounts returns the number of classified securities per class
func (r *BacktestResult) ClassCounts() map[DefenseClass]int {
	counts := make(map[DefenseClass]int, len(DefenseClasses()))
	for _, c := range DefenseClasses() {
		counts[c] = 0
	}
	for _, rec := range r.Classifications {
		counts[rec.Classification]++
	}
	return counts
}
