package defense

import (
	"time"

	"github.com/wonny/aegis-defense/internal/contracts"
)

var seriesStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// repeat builds n copies of r
func repeat(r float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r
	}
	return out
}

// concat joins return blocks
func concat(blocks ...[]float64) []float64 {
	var out []float64
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

// scale multiplies every return by k
func scale(returns []float64, k float64) []float64 {
	out := make([]float64, len(returns))
	for i, r := range returns {
		out[i] = r * k
	}
	return out
}

// returnSeries monthly ReturnPoints starting one month after seriesStart
func returnSeries(returns []float64) []contracts.ReturnPoint {
	series := make([]contracts.ReturnPoint, len(returns))
	for i, r := range returns {
		series[i] = contracts.ReturnPoint{
			Month:  seriesStart.AddDate(0, i+1, 0),
			Return: r,
		}
	}
	return series
}

// pricesFromReturns one month-end close per month, len(returns)+1 observations
func pricesFromReturns(returns []float64) []contracts.PricePoint {
	prices := make([]contracts.PricePoint, 0, len(returns)+1)
	price := 100.0
	prices = append(prices, contracts.PricePoint{Date: seriesStart.AddDate(0, 0, 27), Close: price})
	for i, r := range returns {
		price *= 1 + r
		prices = append(prices, contracts.PricePoint{
			Date:  seriesStart.AddDate(0, i+1, 27),
			Close: price,
		})
	}
	return prices
}

// crashReturns 20 months +2%, 6 months -10%, 34 months +3%
func crashReturns() []float64 {
	return concat(repeat(0.02, 20), repeat(-0.10, 6), repeat(0.03, 34))
}

// maskFromFlags builds a mask aligned with returnSeries
func maskFromFlags(flags []bool) Mask {
	mask := make(Mask, len(flags))
	for i, f := range flags {
		mask[i] = MaskPoint{Month: seriesStart.AddDate(0, i+1, 0), InDrawdown: f}
	}
	return mask
}
