package defense

import (
	"fmt"
	"math"

	"github.com/wonny/aegis-defense/internal/contracts"
)

// Policy maps downside capture to a DefenseClass with half-open bins
// Classes[i] covers [Cuts[i-1], Cuts[i]), the first class is open below and
// the last class is open above, so every real number lands in exactly one bin.
type Policy struct {
	Classes []contracts.DefenseClass `json:"classes"`
	Cuts    []float64                `json:"cuts"`
}

// DefaultPolicy HEDGE < 0 <= DEFENSIVE < 0.6 <= MODERATE < 1.0 <= CYCLICAL < 1.5 <= AMPLIFIER
func DefaultPolicy() Policy {
	return Policy{
		Classes: contracts.DefenseClasses(),
		Cuts:    []float64{0, 0.6, 1.0, 1.5},
	}
}

// Validate checks ordinal order and strictly increasing finite cut points
func (p Policy) Validate() error {
	expected := contracts.DefenseClasses()
	if len(p.Classes) != len(expected) {
		return fmt.Errorf("%w: need %d classes, got %d", ErrInvalidPolicy, len(expected), len(p.Classes))
	}
	for i, c := range p.Classes {
		if c != expected[i] {
			return fmt.Errorf("%w: class %d must be %s, got %s", ErrInvalidPolicy, i, expected[i], c)
		}
	}
	if len(p.Cuts) != len(p.Classes)-1 {
		return fmt.Errorf("%w: need %d cut points, got %d", ErrInvalidPolicy, len(p.Classes)-1, len(p.Cuts))
	}
	for i, cut := range p.Cuts {
		if math.IsNaN(cut) || math.IsInf(cut, 0) {
			return fmt.Errorf("%w: cut %d is not finite", ErrInvalidPolicy, i)
		}
		if i > 0 && cut <= p.Cuts[i-1] {
			return fmt.Errorf("%w: cuts must be strictly increasing (%.4f <= %.4f)", ErrInvalidPolicy, cut, p.Cuts[i-1])
		}
	}
	return nil
}

// Classify maps a downside capture value to its class
func (p Policy) Classify(downsideCapture float64) contracts.DefenseClass {
	for i, cut := range p.Cuts {
		if downsideCapture < cut {
			return p.Classes[i]
		}
	}
	return p.Classes[len(p.Classes)-1]
}

// Classify maps downside capture with the default policy
func Classify(downsideCapture float64) contracts.DefenseClass {
	return DefaultPolicy().Classify(downsideCapture)
}
