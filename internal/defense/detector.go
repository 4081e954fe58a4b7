package defense

import (
	"sort"
	"time"

	"github.com/wonny/aegis-defense/internal/contracts"
)

// DefaultDrawdownThreshold benchmark must be more than 5% below its peak
const DefaultDrawdownThreshold = -0.05

// MaskPoint drawdown flag for one benchmark month
type MaskPoint struct {
	Month      time.Time `json:"month"`
	InDrawdown bool      `json:"in_drawdown"`
}

// Mask ordered drawdown flags aligned with the benchmark return series
// ⭐ 실행당 한 번 계산, 이후 읽기 전용
type Mask []MaskPoint

// Count number of months flagged as in drawdown
func (m Mask) Count() int {
	count := 0
	for _, p := range m {
		if p.InDrawdown {
			count++
		}
	}
	return count
}

// Lookup reports the flag for month and whether the month is covered by the mask
func (m Mask) Lookup(month time.Time) (inDrawdown bool, ok bool) {
	key := monthKey(month)
	idx := sort.Search(len(m), func(i int) bool {
		return monthKey(m[i].Month) >= key
	})
	if idx < len(m) && monthKey(m[idx].Month) == key {
		return m[idx].InDrawdown, true
	}
	return false, false
}

// byMonth indexes the mask by month key
func (m Mask) byMonth() map[int]bool {
	index := make(map[int]bool, len(m))
	for _, p := range m {
		index[monthKey(p.Month)] = p.InDrawdown
	}
	return index
}

// DetectDrawdowns flags benchmark months whose drawdown from the running peak
// is strictly below threshold (e.g. -0.05). Pure; benchmark is not modified.
func DetectDrawdowns(benchmark []contracts.ReturnPoint, threshold float64) Mask {
	drawdowns := Drawdowns(returnValues(benchmark))

	mask := make(Mask, len(benchmark))
	for i, r := range benchmark {
		mask[i] = MaskPoint{
			Month:      r.Month,
			InDrawdown: drawdowns[i] < threshold,
		}
	}
	return mask
}
