package defense

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-defense/internal/contracts"
)

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(DefaultAnalyzerConfig())
}

func crashBenchmark() ([]contracts.ReturnPoint, Mask) {
	bench := returnSeries(crashReturns())
	return bench, DetectDrawdowns(bench, DefaultDrawdownThreshold)
}

func TestAnalyze_InsufficientOverlap(t *testing.T) {
	bench, mask := crashBenchmark()
	a := newTestAnalyzer()

	// 11 common months only
	security := bench[15:26]
	metrics, reason := a.Analyze(security, bench, mask)
	assert.Nil(t, metrics)
	assert.Equal(t, contracts.SkipInsufficientOverlap, reason)

	// disjoint months never align
	shifted := make([]contracts.ReturnPoint, len(bench))
	for i, r := range bench {
		shifted[i] = contracts.ReturnPoint{Month: r.Month.AddDate(10, 0, 0), Return: r.Return}
	}
	metrics, reason = a.Analyze(shifted, bench, mask)
	assert.Nil(t, metrics)
	assert.Equal(t, contracts.SkipInsufficientOverlap, reason)
}

func TestAnalyze_MaskLimitsOverlap(t *testing.T) {
	bench, mask := crashBenchmark()

	metrics, reason := newTestAnalyzer().Analyze(bench, bench, mask[:11])
	assert.Nil(t, metrics)
	assert.Equal(t, contracts.SkipInsufficientOverlap, reason)
}

func TestAnalyze_InsufficientDrawdownMonths(t *testing.T) {
	bench := returnSeries(repeat(0.01, 24))
	flags := make([]bool, 24)
	flags[5], flags[6] = true, true

	metrics, reason := newTestAnalyzer().Analyze(bench, bench, maskFromFlags(flags))
	assert.Nil(t, metrics)
	assert.Equal(t, contracts.SkipInsufficientDrawdowns, reason)
}

func TestAnalyze_BullMarketAlwaysSkips(t *testing.T) {
	bench := returnSeries(repeat(0.02, 60))
	mask := DetectDrawdowns(bench, DefaultDrawdownThreshold)

	for _, k := range []float64{-1, 0, 0.5, 1, 3} {
		metrics, reason := newTestAnalyzer().Analyze(returnSeries(scale(repeat(0.02, 60), k)), bench, mask)
		assert.Nil(t, metrics)
		assert.Equal(t, contracts.SkipInsufficientDrawdowns, reason)
	}
}

func TestAnalyze_FlatBenchmarkInDrawdown(t *testing.T) {
	returns := concat([]float64{-0.05, 0.05, 0.0}, repeat(0.01, 12))
	flags := make([]bool, len(returns))
	flags[0], flags[1], flags[2] = true, true, true

	metrics, reason := newTestAnalyzer().Analyze(returnSeries(returns), returnSeries(returns), maskFromFlags(flags))
	assert.Nil(t, metrics)
	assert.Equal(t, contracts.SkipFlatBenchmark, reason)
}

func TestAnalyze_IdenticalSeries(t *testing.T) {
	bench, mask := crashBenchmark()

	metrics, reason := newTestAnalyzer().Analyze(bench, bench, mask)
	require.NotNil(t, metrics)
	assert.Equal(t, contracts.SkipNone, reason)

	assert.Equal(t, 1.0, metrics.DownsideCapture)
	assert.Equal(t, 0.0, metrics.WinRateInDrawdown, "a series never strictly beats itself")
	require.NotNil(t, metrics.UpsideCapture)
	assert.Equal(t, 1.0, *metrics.UpsideCapture)
	require.NotNil(t, metrics.CaptureRatio)
	assert.Equal(t, 1.0, *metrics.CaptureRatio)
	assert.Equal(t, 25, metrics.EpisodesMeasured)
	// DC=1.0 sits on the MODERATE/CYCLICAL edge, bins are [lo, hi)
	assert.Equal(t, contracts.ClassCyclical, Classify(metrics.DownsideCapture))
}

func TestAnalyze_DoubleBeta(t *testing.T) {
	bench, mask := crashBenchmark()
	security := returnSeries(scale(crashReturns(), 2))

	metrics, _ := newTestAnalyzer().Analyze(security, bench, mask)
	require.NotNil(t, metrics)

	assert.Equal(t, 2.0, metrics.DownsideCapture)
	assert.Equal(t, contracts.ClassAmplifier, Classify(metrics.DownsideCapture))
}

func TestAnalyze_ExplicitMetrics(t *testing.T) {
	benchReturns := concat(repeat(-0.10, 3), repeat(0.02, 9))
	secReturns := concat(repeat(-0.05, 3), repeat(0.03, 9))
	flags := make([]bool, 12)
	flags[0], flags[1], flags[2] = true, true, true

	metrics, reason := newTestAnalyzer().Analyze(returnSeries(secReturns), returnSeries(benchReturns), maskFromFlags(flags))
	require.NotNil(t, metrics)
	assert.Equal(t, contracts.SkipNone, reason)

	assert.Equal(t, 0.5, metrics.DownsideCapture)
	assert.Equal(t, 1.0, metrics.WinRateInDrawdown)
	require.NotNil(t, metrics.UpsideCapture)
	assert.Equal(t, 1.5, *metrics.UpsideCapture)
	require.NotNil(t, metrics.CaptureRatio)
	assert.Equal(t, 3.0, *metrics.CaptureRatio)
	// peak is the first month wealth 0.95, not the initial 1.0
	assert.Equal(t, -0.0975, metrics.MaxDrawdown)
	assert.Equal(t, 3, metrics.EpisodesMeasured)
	assert.Equal(t, contracts.ClassDefensive, Classify(metrics.DownsideCapture))
}

func TestAnalyze_NoUpsideMonths(t *testing.T) {
	returns := repeat(-0.02, 12)
	flags := make([]bool, 12)
	for i := range flags {
		flags[i] = true
	}

	metrics, _ := newTestAnalyzer().Analyze(returnSeries(scale(returns, 0.5)), returnSeries(returns), maskFromFlags(flags))
	require.NotNil(t, metrics)
	assert.Nil(t, metrics.UpsideCapture)
	assert.Nil(t, metrics.CaptureRatio)
	assert.Equal(t, 0.5, metrics.DownsideCapture)
}

func TestAnalyze_ZeroDownsideHasNoCaptureRatio(t *testing.T) {
	benchReturns := concat(repeat(-0.10, 3), repeat(0.02, 9))
	secReturns := concat(repeat(0.0, 3), repeat(0.01, 9))
	flags := make([]bool, 12)
	flags[0], flags[1], flags[2] = true, true, true

	metrics, _ := newTestAnalyzer().Analyze(returnSeries(secReturns), returnSeries(benchReturns), maskFromFlags(flags))
	require.NotNil(t, metrics)
	assert.Equal(t, 0.0, metrics.DownsideCapture)
	require.NotNil(t, metrics.UpsideCapture)
	assert.Nil(t, metrics.CaptureRatio)
	assert.Equal(t, contracts.ClassDefensive, Classify(metrics.DownsideCapture))
}

func TestAnalyze_NegativeCaptureIsHedge(t *testing.T) {
	bench, mask := crashBenchmark()
	security := returnSeries(scale(crashReturns(), -0.5))

	metrics, _ := newTestAnalyzer().Analyze(security, bench, mask)
	require.NotNil(t, metrics)
	assert.Equal(t, -0.5, metrics.DownsideCapture)
	// wins the 6 crash months, loses the 19 recovery months still under water
	assert.Equal(t, 0.24, metrics.WinRateInDrawdown)
	assert.Equal(t, contracts.ClassHedge, Classify(metrics.DownsideCapture))
}
