package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-defense/internal/contracts"
	"github.com/wonny/aegis-defense/internal/defense"
	"github.com/wonny/aegis-defense/internal/metrics"
	"github.com/wonny/aegis-defense/internal/policy"
	"github.com/wonny/aegis-defense/internal/scheduler"
	"github.com/wonny/aegis-defense/pkg/logger"
)

// ErrRunInProgress another process holds the backtest lock
var ErrRunInProgress = errors.New("defense backtest already running")

// Locker single-holder lease (*redis.Lock)
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// DefenseBacktestDeps collaborators of DefenseBacktestJob
type DefenseBacktestDeps struct {
	Prices    contracts.PriceHistoryRepository
	Overrides contracts.OverrideRepository
	Results   contracts.ClassificationRepository
	Policy    *policy.Config
	Schedule  string

	Metrics *metrics.Registry // optional
	Lock    Locker            // optional
	Logger  *logger.Logger
}

// DefenseBacktestJob loads prices, classifies the universe and stores the run
// ⭐ SSOT: 월간 분류 배치는 이 Job에서만 실행
type DefenseBacktestJob struct {
	deps       DefenseBacktestDeps
	engine     *defense.Backtester
	policyHash string
	loadLimit  int
	now        func() time.Time
	logger     *logger.Logger
}

// NewDefenseBacktestJob creates a new defense backtest job
func NewDefenseBacktestJob(deps DefenseBacktestDeps) (*DefenseBacktestJob, error) {
	if deps.Prices == nil || deps.Overrides == nil || deps.Results == nil {
		return nil, fmt.Errorf("defense backtest job: repositories are required")
	}
	if deps.Policy == nil {
		return nil, fmt.Errorf("defense backtest job: policy is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	hash, err := policy.Hash(deps.Policy)
	if err != nil {
		return nil, fmt.Errorf("hash policy: %w", err)
	}

	cfg, pol := deps.Policy.ToEngine()
	log := deps.Logger.WithField("job", "defense_backtest")
	engine, err := defense.NewBacktester(cfg, pol, log)
	if err != nil {
		return nil, err
	}

	return &DefenseBacktestJob{
		deps:       deps,
		engine:     engine,
		policyHash: hash,
		loadLimit:  cfg.Workers,
		now:        time.Now,
		logger:     log,
	}, nil
}

// Name returns the job name
func (j *DefenseBacktestJob) Name() string {
	return "defense_backtest"
}

// Schedule returns the cron schedule (default: 1st of every month at 19:00)
func (j *DefenseBacktestJob) Schedule() string {
	if j.deps.Schedule == "" {
		return "0 0 19 1 * *"
	}
	return j.deps.Schedule
}

// PolicyHash hash stored with every saved run
func (j *DefenseBacktestJob) PolicyHash() string {
	return j.policyHash
}

// Run executes one scheduled backtest and saves the result
func (j *DefenseBacktestJob) Run(ctx context.Context) error {
	_, err := j.Execute(ctx, true)
	if errors.Is(err, ErrRunInProgress) {
		return nil
	}
	return err
}

// Execute runs the backtest, save=false leaves storage untouched
func (j *DefenseBacktestJob) Execute(ctx context.Context, save bool) (*contracts.BacktestResult, error) {
	start := time.Now()

	if j.deps.Lock != nil {
		ok, err := j.deps.Lock.Acquire(ctx)
		if err != nil {
			j.observeRun(metrics.OutcomeFailed)
			return nil, err
		}
		if !ok {
			j.logger.Warn("Backtest lock held elsewhere, skipping run")
			j.observeRun(metrics.OutcomeSkipped)
			return nil, ErrRunInProgress
		}
		defer func() {
			if err := j.deps.Lock.Release(context.WithoutCancel(ctx)); err != nil {
				j.logger.WithError(err).Warn("Failed to release backtest lock")
			}
		}()
	}

	result, err := j.execute(ctx, save)
	if err != nil {
		j.observeRun(metrics.OutcomeFailed)
		return nil, err
	}

	if j.deps.Metrics != nil {
		j.deps.Metrics.ObserveResult(result, time.Since(start))
	}
	j.observeRun(metrics.OutcomeSuccess)
	return result, nil
}

func (j *DefenseBacktestJob) execute(ctx context.Context, save bool) (*contracts.BacktestResult, error) {
	now := j.now().UTC()
	runDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	// 한 해 더 로드: 구간 첫 달의 수익률에 직전 종가가 필요
	from := runDate.AddDate(-(j.engine.Config().LookbackYears + 1), 0, 0)

	symbols, err := j.deps.Prices.GetUniverse(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}

	benchmarkSymbol := j.deps.Policy.Meta.Benchmark
	benchmark, err := j.deps.Prices.GetCloseHistory(ctx, benchmarkSymbol, from, runDate)
	if err != nil {
		return nil, fmt.Errorf("load benchmark %s: %w", benchmarkSymbol, err)
	}
	if err := j.engine.CheckBenchmark(benchmark); err != nil {
		return nil, scheduler.Permanent(fmt.Errorf("benchmark %s: %w", benchmarkSymbol, err))
	}

	stored, err := j.deps.Overrides.GetOverrides(ctx)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}

	prices, loadErrors := j.loadHistories(ctx, symbols, from, runDate)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	j.logger.WithFields(map[string]interface{}{
		"run_date":    runDate.Format("2006-01-02"),
		"benchmark":   benchmarkSymbol,
		"universe":    len(symbols),
		"load_errors": len(loadErrors),
		"policy_hash": j.policyHash,
	}).Info("Backtest inputs loaded")

	result := j.engine.Run(ctx, defense.Input{
		Prices:     prices,
		Benchmark:  benchmark,
		Overrides:  j.deps.Policy.MergeOverrides(stored),
		RunDate:    runDate,
		LoadErrors: loadErrors,
	})

	if !save {
		return result, nil
	}
	if err := j.deps.Results.SaveResult(ctx, result, j.policyHash); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"run_date":  runDate.Format("2006-01-02"),
		"processed": result.TickersProcessed,
		"skipped":   result.TickersSkipped,
	}).Info("Backtest result saved")

	return result, nil
}

// loadHistories fetches every symbol's closes, failures are kept per symbol
func (j *DefenseBacktestJob) loadHistories(ctx context.Context, symbols []string, from, to time.Time) (map[string][]contracts.PricePoint, map[string]error) {
	var mu sync.Mutex
	prices := make(map[string][]contracts.PricePoint, len(symbols))
	loadErrors := make(map[string]error)

	g := new(errgroup.Group)
	g.SetLimit(j.loadLimit)
	for _, symbol := range symbols {
		g.Go(func() error {
			points, err := j.deps.Prices.GetCloseHistory(ctx, symbol, from, to)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				loadErrors[symbol] = err
				return nil
			}
			prices[symbol] = points
			return nil
		})
	}
	// load errors are collected per symbol, goroutines never return an error
	g.Wait()

	return prices, loadErrors
}

func (j *DefenseBacktestJob) observeRun(outcome string) {
	if j.deps.Metrics != nil {
		j.deps.Metrics.ObserveRun(outcome)
	}
}

var _ scheduler.Job = (*DefenseBacktestJob)(nil)
