package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-defense/internal/contracts"
	"github.com/wonny/aegis-defense/internal/metrics"
	"github.com/wonny/aegis-defense/internal/policy"
	"github.com/wonny/aegis-defense/internal/scheduler"
	"github.com/wonny/aegis-defense/pkg/logger"
)

var fixedNow = time.Date(2026, 10, 1, 12, 30, 0, 0, time.UTC)

// monthlyCloses one close per month ending September 2026
func monthlyCloses(returns []float64) []contracts.PricePoint {
	start := time.Date(2026, 9, 28, 0, 0, 0, 0, time.UTC).AddDate(0, -len(returns), 0)
	price := 100.0
	points := []contracts.PricePoint{{Date: start, Close: price}}
	for i, r := range returns {
		price *= 1 + r
		points = append(points, contracts.PricePoint{Date: start.AddDate(0, i+1, 0), Close: price})
	}
	return points
}

func crash() []float64 {
	out := make([]float64, 0, 60)
	for i := 0; i < 60; i++ {
		switch {
		case i < 20:
			out = append(out, 0.02)
		case i < 26:
			out = append(out, -0.10)
		default:
			out = append(out, 0.03)
		}
	}
	return out
}

func scaled(rs []float64, k float64) []float64 {
	out := make([]float64, len(rs))
	for i, r := range rs {
		out[i] = r * k
	}
	return out
}

type fakePrices struct {
	universe []string
	history  map[string][]contracts.PricePoint
	fail     map[string]error
	mu       sync.Mutex
	windows  map[string][2]time.Time
}

func (f *fakePrices) GetCloseHistory(_ context.Context, symbol string, from, to time.Time) ([]contracts.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.windows == nil {
		f.windows = make(map[string][2]time.Time)
	}
	f.windows[symbol] = [2]time.Time{from, to}
	if err := f.fail[symbol]; err != nil {
		return nil, err
	}
	return f.history[symbol], nil
}

func (f *fakePrices) GetUniverse(context.Context) ([]string, error) {
	return f.universe, nil
}

type fakeOverrides map[string]string

func (f fakeOverrides) GetOverrides(context.Context) (map[string]string, error) {
	return f, nil
}

type fakeResults struct {
	saved   *contracts.BacktestResult
	hash    string
	saveErr error
}

func (f *fakeResults) SaveResult(_ context.Context, result *contracts.BacktestResult, hash string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved, f.hash = result, hash
	return nil
}

func (f *fakeResults) GetLatestResult(context.Context) (*contracts.BacktestResult, error) {
	return f.saved, nil
}

func (f *fakeResults) GetClassification(context.Context, string) (*contracts.ClassificationRecord, time.Time, error) {
	return nil, time.Time{}, errors.New("not implemented")
}

type fakeLock struct {
	held     bool
	released bool
}

func (l *fakeLock) Acquire(context.Context) (bool, error) { return !l.held, nil }
func (l *fakeLock) Release(context.Context) error {
	l.released = true
	return nil
}

func newFixture() (*fakePrices, *fakeResults, DefenseBacktestDeps) {
	bench := crash()
	prices := &fakePrices{
		universe: []string{"SPY", "TQQQ", "TLT", "BAD"},
		history: map[string][]contracts.PricePoint{
			"SPY":  monthlyCloses(bench),
			"TQQQ": monthlyCloses(scaled(bench, 2)),
			"TLT":  monthlyCloses(scaled(bench, -0.3)),
		},
		fail: map[string]error{"BAD": errors.New("connection reset")},
	}
	results := &fakeResults{}

	pol := policy.Default()
	pol.Backtest.Workers = 2
	pol.Overrides = map[string]string{"GLD": "DEFENSIVE"}

	return prices, results, DefenseBacktestDeps{
		Prices:    prices,
		Overrides: fakeOverrides{"PHYS": "HEDGE"},
		Results:   results,
		Policy:    pol,
		Metrics:   metrics.NewRegistry(),
	}
}

func newTestJob(t *testing.T, deps DefenseBacktestDeps) *DefenseBacktestJob {
	t.Helper()
	job, err := NewDefenseBacktestJob(deps)
	require.NoError(t, err)
	job.now = func() time.Time { return fixedNow }
	return job
}

func TestNewDefenseBacktestJob_Validation(t *testing.T) {
	_, _, deps := newFixture()

	missing := deps
	missing.Results = nil
	_, err := NewDefenseBacktestJob(missing)
	assert.Error(t, err)

	noPolicy := deps
	noPolicy.Policy = nil
	_, err = NewDefenseBacktestJob(noPolicy)
	assert.Error(t, err)

	job := newTestJob(t, deps)
	assert.Equal(t, "defense_backtest", job.Name())
	assert.Equal(t, "0 0 19 1 * *", job.Schedule())
	assert.Len(t, job.PolicyHash(), 64)
}

func TestDefenseBacktestJob_Run(t *testing.T) {
	prices, results, deps := newFixture()
	job := newTestJob(t, deps)

	require.NoError(t, job.Run(context.Background()))
	require.NotNil(t, results.saved)
	assert.Equal(t, job.PolicyHash(), results.hash)

	saved := results.saved
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), saved.RunDate)
	assert.Equal(t, 25, saved.BenchmarkDrawdownMonths)

	assert.Equal(t, contracts.ClassCyclical, saved.Classifications["SPY"].Classification)
	assert.Equal(t, contracts.ClassAmplifier, saved.Classifications["TQQQ"].Classification)
	assert.Equal(t, contracts.ClassHedge, saved.Classifications["TLT"].Classification)
	assert.Equal(t, contracts.SourceOverride, saved.Classifications["PHYS"].Source)
	assert.Equal(t, contracts.ClassDefensive, saved.Classifications["GLD"].Classification)

	assert.Equal(t, []string{"BAD: load prices: connection reset"}, saved.Errors)
	assert.Equal(t, 5, saved.TickersProcessed)
	assert.Equal(t, 1, saved.TickersSkipped)

	// lookback + 1 years of history requested
	window := prices.windows["TQQQ"]
	assert.Equal(t, time.Date(2010, 10, 1, 0, 0, 0, 0, time.UTC), window[0])
	assert.Equal(t, saved.RunDate, window[1])

	reg := deps.Metrics
	assert.Equal(t, 5.0, testutil.ToFloat64(reg.TickersProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Runs.WithLabelValues(metrics.OutcomeSuccess)))
}

func TestDefenseBacktestJob_DryRun(t *testing.T) {
	_, results, deps := newFixture()
	job := newTestJob(t, deps)

	result, err := job.Execute(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 5, result.TickersProcessed)
	assert.Nil(t, results.saved)
}

func TestDefenseBacktestJob_InsufficientBenchmarkIsPermanent(t *testing.T) {
	prices, results, deps := newFixture()
	prices.history["SPY"] = monthlyCloses(crash()[:10])
	job := newTestJob(t, deps)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.True(t, scheduler.IsPermanent(err))
	assert.Nil(t, results.saved, "a rejected benchmark never overwrites the latest run")
	assert.Equal(t, 1.0, testutil.ToFloat64(deps.Metrics.Runs.WithLabelValues(metrics.OutcomeFailed)))
}

func TestDefenseBacktestJob_SaveFailure(t *testing.T) {
	_, results, deps := newFixture()
	results.saveErr = errors.New("deadlock detected")
	job := newTestJob(t, deps)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.False(t, scheduler.IsPermanent(err), "save failures are retried")
}

func TestDefenseBacktestJob_LockHeld(t *testing.T) {
	_, results, deps := newFixture()
	deps.Lock = &fakeLock{held: true}
	job := newTestJob(t, deps)

	assert.NoError(t, job.Run(context.Background()))
	assert.Nil(t, results.saved)

	_, err := job.Execute(context.Background(), true)
	assert.True(t, errors.Is(err, ErrRunInProgress))
	assert.Equal(t, 2.0, testutil.ToFloat64(deps.Metrics.Runs.WithLabelValues(metrics.OutcomeSkipped)))
}

func TestDefenseBacktestJob_ReleasesLock(t *testing.T) {
	_, _, deps := newFixture()
	lock := &fakeLock{}
	deps.Lock = lock
	job := newTestJob(t, deps)

	require.NoError(t, job.Run(context.Background()))
	assert.True(t, lock.released)
}

func TestDefenseBacktestJob_WithScheduler(t *testing.T) {
	_, results, deps := newFixture()
	job := newTestJob(t, deps)

	s := scheduler.New(logger.Nop(), scheduler.WithRetries(0, time.Millisecond))
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJobSync(context.Background(), job.Name())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotNil(t, results.saved)
}
