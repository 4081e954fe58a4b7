package defense

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDrawdowns_BullMarket(t *testing.T) {
	mask := DetectDrawdowns(returnSeries(repeat(0.02, 60)), DefaultDrawdownThreshold)

	require.Len(t, mask, 60)
	assert.Equal(t, 0, mask.Count())
}

func TestDetectDrawdowns_CrashAndRecovery(t *testing.T) {
	mask := DetectDrawdowns(returnSeries(crashReturns()), DefaultDrawdownThreshold)

	// 6 crash months plus 19 recovery months still more than 5% below the peak
	assert.Greater(t, mask.Count(), 0)
	assert.Equal(t, 25, mask.Count())

	assert.False(t, mask[19].InDrawdown, "peak month")
	assert.True(t, mask[20].InDrawdown, "first crash month")
	assert.True(t, mask[44].InDrawdown)
	assert.False(t, mask[45].InDrawdown, "back within 5% of the peak")
}

func TestDetectDrawdowns_ThresholdIsStrict(t *testing.T) {
	// sitting exactly on the threshold is not a drawdown month
	series := returnSeries([]float64{0.0, -0.5, 0.0})
	mask := DetectDrawdowns(series, -0.5)
	assert.Equal(t, 0, mask.Count())

	mask = DetectDrawdowns(series, -0.49)
	assert.Equal(t, 2, mask.Count())
}

func TestDetectDrawdowns_FirstMonthCrash(t *testing.T) {
	// running peak starts at the first month's wealth, so a crash in month 1 is the peak itself
	series := returnSeries([]float64{-0.5, 0.0, 0.0, 0.1, -0.2})
	mask := DetectDrawdowns(series, DefaultDrawdownThreshold)

	require.Len(t, mask, 5)
	assert.False(t, mask[0].InDrawdown)
	assert.False(t, mask[1].InDrawdown)
	assert.False(t, mask[2].InDrawdown)
	assert.False(t, mask[3].InDrawdown, "new peak")
	assert.True(t, mask[4].InDrawdown)
	assert.Equal(t, 1, mask.Count())

	dd := Drawdowns(returnValues(series))
	assert.Equal(t, 0.0, dd[0])
	assert.InDelta(t, -0.2, dd[4], 1e-12)
}

func TestDetectDrawdowns_Monotonic(t *testing.T) {
	returns := make([]float64, 120)
	for i := range returns {
		returns[i] = 0.04*math.Sin(float64(i)/3) - 0.005
	}
	series := returnSeries(returns)

	thresholds := []float64{-0.01, -0.03, -0.05, -0.10, -0.20, -0.40}
	prev := len(series) + 1
	for _, th := range thresholds {
		count := DetectDrawdowns(series, th).Count()
		assert.LessOrEqual(t, count, prev, "threshold %.2f", th)
		prev = count
	}
}

func TestDetectDrawdowns_DoesNotMutateInput(t *testing.T) {
	series := returnSeries(crashReturns())
	before := append(series[:0:0], series...)

	_ = DetectDrawdowns(series, DefaultDrawdownThreshold)

	assert.Equal(t, before, series)
}

func TestMask_Lookup(t *testing.T) {
	series := returnSeries(crashReturns())
	mask := DetectDrawdowns(series, DefaultDrawdownThreshold)

	in, ok := mask.Lookup(series[20].Month)
	assert.True(t, ok)
	assert.True(t, in)

	in, ok = mask.Lookup(series[0].Month)
	assert.True(t, ok)
	assert.False(t, in)

	_, ok = mask.Lookup(seriesStart.AddDate(-1, 0, 0))
	assert.False(t, ok)
}
