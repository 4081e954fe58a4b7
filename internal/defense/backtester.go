package defense

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-defense/internal/contracts"
	"github.com/wonny/aegis-defense/pkg/logger"
)

var (
	ErrInsufficientBenchmark = errors.New("insufficient benchmark data")
	ErrInvalidPolicy         = errors.New("invalid defense policy")
	ErrInvalidConfig         = errors.New("invalid backtest configuration")
)

// Config backtest run parameters
// ⭐ SSOT: 재현성을 위해 모든 파라미터를 명시적으로 기록
type Config struct {
	LookbackYears     int            `json:"lookback_years"`     // 기본: 15
	DrawdownThreshold float64        `json:"drawdown_threshold"` // 기본: -0.05
	MinObservations   int            `json:"min_observations"`   // raw price floor (기본: 60)
	Analyzer          AnalyzerConfig `json:"analyzer"`
	Workers           int            `json:"workers"` // 1 = sequential
}

// DefaultConfig default backtest configuration
func DefaultConfig() Config {
	return Config{
		LookbackYears:     15,
		DrawdownThreshold: DefaultDrawdownThreshold,
		MinObservations:   60,
		Analyzer:          DefaultAnalyzerConfig(),
		Workers:           1,
	}
}

// Validate checks configuration bounds
func (c Config) Validate() error {
	if c.LookbackYears < 1 {
		return fmt.Errorf("%w: LookbackYears must be >= 1", ErrInvalidConfig)
	}
	if c.DrawdownThreshold >= 0 || math.IsNaN(c.DrawdownThreshold) {
		return fmt.Errorf("%w: DrawdownThreshold must be < 0", ErrInvalidConfig)
	}
	if c.MinObservations < 2 {
		return fmt.Errorf("%w: MinObservations must be >= 2", ErrInvalidConfig)
	}
	if c.Analyzer.MinOverlapMonths < 1 || c.Analyzer.MinDrawdownMonths < 1 {
		return fmt.Errorf("%w: analyzer minimums must be >= 1", ErrInvalidConfig)
	}
	if c.Analyzer.Epsilon <= 0 {
		return fmt.Errorf("%w: analyzer epsilon must be > 0", ErrInvalidConfig)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: Workers must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// Input everything a run needs, already loaded by the caller
type Input struct {
	Prices    map[string][]contracts.PricePoint // symbol -> raw closes
	Benchmark []contracts.PricePoint
	Overrides map[string]string // symbol -> label ("" = none)
	RunDate   time.Time         // injected, stamps the result

	// LoadErrors symbols whose history could not be loaded (recorded as failures)
	LoadErrors map[string]error
}

// =============================================================================
// Backtester - 배치 오케스트레이터
// =============================================================================

// Backtester classifies a universe of securities by drawdown behavior
// ⭐ SSOT: 데이터 조회/저장은 상위 레이어에서, 여기서는 계산과 분류만
type Backtester struct {
	config   Config
	policy   Policy
	analyzer *Analyzer
	logger   *logger.Logger

	// analyze is swapped in tests to inject per-security failures
	analyze func(security, benchmark []contracts.ReturnPoint, mask Mask) (*contracts.TickerMetrics, contracts.SkipReason)
}

// NewBacktester creates a new backtester
func NewBacktester(config Config, policy Policy, log *logger.Logger) (*Backtester, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	analyzer := NewAnalyzer(config.Analyzer)
	return &Backtester{
		config:   config,
		policy:   policy,
		analyzer: analyzer,
		logger:   log,
		analyze:  analyzer.Analyze,
	}, nil
}

// Config returns the run configuration
func (b *Backtester) Config() Config {
	return b.config
}

type outcomeStatus int

const (
	outcomeClassified outcomeStatus = iota
	outcomeSkipped
	outcomeFailed
)

// outcome explicit per-security result
type outcome struct {
	symbol string
	status outcomeStatus
	record contracts.ClassificationRecord
	reason contracts.SkipReason
	err    error
}

// benchmarkContext read-only benchmark state shared by all workers
type benchmarkContext struct {
	returns []contracts.ReturnPoint
	mask    Mask
	anchor  time.Time
}

// Run executes one backtest over the universe
// Insufficient benchmark history is the only fatal condition; every other
// problem is isolated to the security it belongs to.
func (b *Backtester) Run(ctx context.Context, in Input) *contracts.BacktestResult {
	result := contracts.NewBacktestResult(in.RunDate)
	start := time.Now()

	b.logger.WithFields(map[string]interface{}{
		"run_date":       in.RunDate.Format("2006-01-02"),
		"securities":     len(in.Prices),
		"overrides":      countOverrides(in.Overrides),
		"lookback_years": b.config.LookbackYears,
		"workers":        b.config.Workers,
	}).Info("Starting drawdown defense backtest")

	bench, err := b.prepareBenchmark(in.Benchmark)
	if err != nil {
		b.logger.WithError(err).Error("Benchmark rejected, aborting run")
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.BenchmarkDrawdownMonths = bench.mask.Count()

	symbols := universe(in)
	outcomes := make([]outcome, len(symbols))

	g := new(errgroup.Group)
	g.SetLimit(b.config.Workers)
	for i, symbol := range symbols {
		g.Go(func() error {
			outcomes[i] = b.processSecurity(ctx, symbol, in, bench)
			return nil
		})
	}
	// processSecurity records failures in outcomes, goroutines never return an error
	g.Wait()

	// 심볼 순서로 조립 (스케줄링 순서와 무관)
	for _, o := range outcomes {
		switch o.status {
		case outcomeClassified:
			result.Classifications[o.symbol] = o.record
			result.TickersProcessed++
		case outcomeSkipped:
			result.Skipped[o.symbol] = o.reason
			result.TickersSkipped++
		case outcomeFailed:
			result.Skipped[o.symbol] = contracts.SkipFailed
			result.TickersSkipped++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", o.symbol, o.err.Error()))
			b.logger.WithFields(map[string]interface{}{
				"symbol": o.symbol,
				"error":  o.err.Error(),
			}).Warn("Security failed during backtest")
		}
	}

	b.logger.WithFields(map[string]interface{}{
		"processed":        result.TickersProcessed,
		"skipped":          result.TickersSkipped,
		"errors":           len(result.Errors),
		"drawdown_months":  result.BenchmarkDrawdownMonths,
		"duration_seconds": time.Since(start).Seconds(),
	}).Info("Drawdown defense backtest completed")

	return result
}

// CheckBenchmark reports whether prices are enough to anchor a run
func (b *Backtester) CheckBenchmark(prices []contracts.PricePoint) error {
	_, err := b.prepareBenchmark(prices)
	return err
}

// prepareBenchmark derives, windows and masks the benchmark once per run
func (b *Backtester) prepareBenchmark(prices []contracts.PricePoint) (*benchmarkContext, error) {
	if len(prices) < b.config.MinObservations {
		return nil, fmt.Errorf("%w: got %d observations, need %d",
			ErrInsufficientBenchmark, len(prices), b.config.MinObservations)
	}

	returns := MonthlyReturns(prices)
	if len(returns) == 0 {
		return nil, fmt.Errorf("%w: no monthly returns could be derived", ErrInsufficientBenchmark)
	}

	anchor := returns[len(returns)-1].Month
	windowed := TrailingWindow(returns, b.config.LookbackYears, anchor)

	return &benchmarkContext{
		returns: windowed,
		mask:    DetectDrawdowns(windowed, b.config.DrawdownThreshold),
		anchor:  anchor,
	}, nil
}

// processSecurity runs override / pre-check / analysis / classification for one symbol
func (b *Backtester) processSecurity(ctx context.Context, symbol string, in Input, bench *benchmarkContext) (o outcome) {
	o.symbol = symbol
	defer func() {
		if r := recover(); r != nil {
			o = outcome{symbol: symbol, status: outcomeFailed, err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return outcome{symbol: symbol, status: outcomeFailed, err: err}
	}

	// a. Manual override - 수치 분석 없이 기록
	if label := in.Overrides[symbol]; label != "" {
		class, err := contracts.ParseDefenseClass(label)
		if err != nil {
			return outcome{symbol: symbol, status: outcomeFailed, err: fmt.Errorf("override: %w", err)}
		}
		o.status = outcomeClassified
		o.record = contracts.ClassificationRecord{
			Classification: class,
			Source:         contracts.SourceOverride,
		}
		return o
	}

	if err := in.LoadErrors[symbol]; err != nil {
		return outcome{symbol: symbol, status: outcomeFailed, err: fmt.Errorf("load prices: %w", err)}
	}

	// b. Raw history floor
	prices := in.Prices[symbol]
	if len(prices) < b.config.MinObservations {
		o.status = outcomeSkipped
		o.reason = contracts.SkipInsufficientHistory
		return o
	}

	// c. Monthly returns over the benchmark's window
	returns := TrailingWindow(MonthlyReturns(prices), b.config.LookbackYears, bench.anchor)

	// d. Analysis
	metrics, reason := b.analyze(returns, bench.returns, bench.mask)
	if metrics == nil {
		if reason == contracts.SkipNone {
			reason = contracts.SkipInsufficientOverlap
		}
		o.status = outcomeSkipped
		o.reason = reason
		return o
	}
	if math.IsNaN(metrics.DownsideCapture) || math.IsInf(metrics.DownsideCapture, 0) {
		return outcome{symbol: symbol, status: outcomeFailed, err: fmt.Errorf("non-finite downside capture")}
	}

	// e. Classification
	o.status = outcomeClassified
	o.record = contracts.ClassificationRecord{
		Classification: b.policy.Classify(metrics.DownsideCapture),
		Metrics:        metrics,
		Source:         contracts.SourceBacktest,
	}
	return o
}

// universe sorted union of priced, unloadable and overridden symbols
func universe(in Input) []string {
	seen := make(map[string]struct{}, len(in.Prices)+len(in.Overrides))
	for symbol := range in.Prices {
		seen[symbol] = struct{}{}
	}
	for symbol := range in.LoadErrors {
		seen[symbol] = struct{}{}
	}
	for symbol, label := range in.Overrides {
		if label != "" {
			seen[symbol] = struct{}{}
		}
	}

	symbols := make([]string, 0, len(seen))
	for symbol := range seen {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func countOverrides(overrides map[string]string) int {
	n := 0
	for _, label := range overrides {
		if label != "" {
			n++
		}
	}
	return n
}
