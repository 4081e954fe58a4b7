package defense

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/aegis-defense/internal/contracts"
)

// =============================================================================
// Monthly Series Helpers
// =============================================================================

// monthStart normalizes t to the first day of its calendar month (UTC)
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthKey maps a month to a sortable integer (year*12 + month index)
func monthKey(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

type monthClose struct {
	month time.Time
	close float64
}

// MonthlyReturns derives a monthly return series from raw closing prices
// 1. 월별 마지막 종가 (group-last-by-month)
// 2. 직전 월 대비 변화율 (percent change)
// 3. 첫 번째 월은 비교 대상이 없으므로 제외
// Non-finite closes are ignored. The input slice is not modified.
func MonthlyReturns(prices []contracts.PricePoint) []contracts.ReturnPoint {
	if len(prices) < 2 {
		return nil
	}

	sorted := make([]contracts.PricePoint, 0, len(prices))
	for _, p := range prices {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		sorted = append(sorted, p)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	months := make([]monthClose, 0)
	for _, p := range sorted {
		m := monthStart(p.Date)
		if n := len(months); n > 0 && months[n-1].month.Equal(m) {
			months[n-1].close = p.Close
			continue
		}
		months = append(months, monthClose{month: m, close: p.Close})
	}

	if len(months) < 2 {
		return nil
	}

	returns := make([]contracts.ReturnPoint, 0, len(months)-1)
	for i := 1; i < len(months); i++ {
		prev := months[i-1].close
		if prev <= 0 {
			continue
		}
		returns = append(returns, contracts.ReturnPoint{
			Month:  months[i].month,
			Return: (months[i].close - prev) / prev,
		})
	}
	return returns
}

// TrailingWindow keeps the months in [anchor - years, anchor]
// The cutoff month itself is included (calendar offset semantics).
func TrailingWindow(returns []contracts.ReturnPoint, years int, anchor time.Time) []contracts.ReturnPoint {
	anchorKey := monthKey(monthStart(anchor))
	cutoffKey := anchorKey - years*12

	windowed := make([]contracts.ReturnPoint, 0, len(returns))
	for _, r := range returns {
		k := monthKey(r.Month)
		if k >= cutoffKey && k <= anchorKey {
			windowed = append(windowed, r)
		}
	}
	return windowed
}

// WealthIndex running compounded value of a unit investment
func WealthIndex(returns []float64) []float64 {
	wealth := make([]float64, len(returns))
	value := 1.0
	for i, r := range returns {
		value *= 1 + r
		wealth[i] = value
	}
	return wealth
}

// Drawdowns (wealth - runningMax) / runningMax for every month, always <= 0
// The running maximum starts at the first wealth value, not at 1.0.
func Drawdowns(returns []float64) []float64 {
	wealth := WealthIndex(returns)
	drawdowns := make([]float64, len(wealth))

	runningMax := math.Inf(-1)
	for i, w := range wealth {
		if w > runningMax {
			runningMax = w
		}
		if runningMax == 0 {
			drawdowns[i] = 0
			continue
		}
		drawdowns[i] = (w - runningMax) / runningMax
	}
	return drawdowns
}

// returnValues extracts the return column of a series
func returnValues(series []contracts.ReturnPoint) []float64 {
	values := make([]float64, len(series))
	for i, r := range series {
		values[i] = r.Return
	}
	return values
}

// mean arithmetic mean, 0 for an empty slice
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// round4 rounds to 4 decimal places
func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
