package defense

import (
	"math"
	"sort"

	"github.com/wonny/aegis-defense/internal/contracts"
)

// =============================================================================
// Ticker Drawdown Analyzer - 순수 계산기
// =============================================================================

// AnalyzerConfig minimum-data guards for capture analysis
type AnalyzerConfig struct {
	MinOverlapMonths  int     `json:"min_overlap_months"`  // 기본: 12
	MinDrawdownMonths int     `json:"min_drawdown_months"` // 기본: 3
	Epsilon           float64 `json:"epsilon"`             // near-zero denominator guard (기본: 1e-8)
}

// DefaultAnalyzerConfig default analyzer guards
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		MinOverlapMonths:  12,
		MinDrawdownMonths: 3,
		Epsilon:           1e-8,
	}
}

// Analyzer computes downside/upside capture for a security against the benchmark
type Analyzer struct {
	config AnalyzerConfig
}

// NewAnalyzer creates a new analyzer
func NewAnalyzer(config AnalyzerConfig) *Analyzer {
	return &Analyzer{config: config}
}

// alignedMonth one month present in security, benchmark and mask
type alignedMonth struct {
	security   float64
	benchmark  float64
	inDrawdown bool
}

// Analyze computes TickerMetrics, or returns nil with a SkipReason when the
// sample cannot support the statistic. Insufficient data is never an error.
func (a *Analyzer) Analyze(security, benchmark []contracts.ReturnPoint, mask Mask) (*contracts.TickerMetrics, contracts.SkipReason) {
	// 1. Alignment (common months only)
	aligned := align(security, benchmark, mask)
	if len(aligned) < a.config.MinOverlapMonths {
		return nil, contracts.SkipInsufficientOverlap
	}

	// 2. Drawdown month count
	var ddSec, ddBench, upSec, upBench []float64
	for _, m := range aligned {
		if m.inDrawdown {
			ddSec = append(ddSec, m.security)
			ddBench = append(ddBench, m.benchmark)
		} else {
			upSec = append(upSec, m.security)
			upBench = append(upBench, m.benchmark)
		}
	}
	if len(ddSec) < a.config.MinDrawdownMonths {
		return nil, contracts.SkipInsufficientDrawdowns
	}

	// 3. Downside capture
	benchDown := mean(ddBench)
	if math.Abs(benchDown) < a.config.Epsilon {
		return nil, contracts.SkipFlatBenchmark
	}
	downside := mean(ddSec) / benchDown

	// 4. Win rate (strictly beats the benchmark)
	wins := 0
	for i := range ddSec {
		if ddSec[i] > ddBench[i] {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(ddSec))

	// 5. Upside capture (optional)
	var upside *float64
	if len(upSec) > 0 {
		benchUp := mean(upBench)
		if math.Abs(benchUp) >= a.config.Epsilon {
			v := mean(upSec) / benchUp
			upside = &v
		}
	}

	// 6. Capture ratio
	var captureRatio *float64
	if upside != nil && math.Abs(downside) > a.config.Epsilon {
		v := round4(*upside / downside)
		captureRatio = &v
	}
	if upside != nil {
		rounded := round4(*upside)
		upside = &rounded
	}

	// 7. Max drawdown of the security itself over the aligned window
	secReturns := make([]float64, len(aligned))
	for i, m := range aligned {
		secReturns[i] = m.security
	}
	maxDD := 0.0
	for _, dd := range Drawdowns(secReturns) {
		if dd < maxDD {
			maxDD = dd
		}
	}

	return &contracts.TickerMetrics{
		DownsideCapture:   round4(downside),
		UpsideCapture:     upside,
		CaptureRatio:      captureRatio,
		WinRateInDrawdown: round4(winRate),
		MaxDrawdown:       round4(maxDD),
		EpisodesMeasured:  len(ddSec),
	}, contracts.SkipNone
}

// align restricts security, benchmark and mask to their common months (ascending)
func align(security, benchmark []contracts.ReturnPoint, mask Mask) []alignedMonth {
	benchByMonth := make(map[int]float64, len(benchmark))
	for _, r := range benchmark {
		benchByMonth[monthKey(r.Month)] = r.Return
	}
	maskByMonth := mask.byMonth()

	secByMonth := make(map[int]float64, len(security))
	for _, r := range security {
		secByMonth[monthKey(r.Month)] = r.Return
	}

	keys := make([]int, 0, len(secByMonth))
	for k := range secByMonth {
		_, inBench := benchByMonth[k]
		_, inMask := maskByMonth[k]
		if inBench && inMask {
			keys = append(keys, k)
		}
	}
	sort.Ints(keys)

	aligned := make([]alignedMonth, len(keys))
	for i, k := range keys {
		aligned[i] = alignedMonth{
			security:   secByMonth[k],
			benchmark:  benchByMonth[k],
			inDrawdown: maskByMonth[k],
		}
	}
	return aligned
}
