package policy

import (
	"fmt"
	"math"
	"strings"

	"github.com/wonny/aegis-defense/internal/contracts"
)

// ValidationError 검증 실패 (실행 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Meta ===
	if cfg.Meta.PolicyID == "" {
		return ValidationError{"meta.policy_id", "required"}
	}
	if strings.TrimSpace(cfg.Meta.Benchmark) == "" {
		return ValidationError{"meta.benchmark", "required"}
	}

	// === Backtest ===
	if cfg.Backtest.LookbackYears < 1 {
		return ValidationError{"backtest.lookback_years", "must be >= 1"}
	}
	if cfg.Backtest.MinObservations < 2 {
		return ValidationError{"backtest.min_observations", "must be >= 2"}
	}
	if cfg.Backtest.Workers < 1 {
		return ValidationError{"backtest.workers", "must be >= 1"}
	}

	// === Detector ===
	t := cfg.Detector.DrawdownThreshold
	if math.IsNaN(t) || t >= 0 || t <= -1 {
		return ValidationError{"detector.drawdown_threshold", "must be in (-1, 0)"}
	}

	// === Analyzer ===
	if cfg.Analyzer.MinOverlapMonths < 1 {
		return ValidationError{"analyzer.min_overlap_months", "must be >= 1"}
	}
	if cfg.Analyzer.MinDrawdownMonths < 1 {
		return ValidationError{"analyzer.min_drawdown_months", "must be >= 1"}
	}
	if cfg.Analyzer.MinDrawdownMonths > cfg.Analyzer.MinOverlapMonths {
		return ValidationError{"analyzer", "min_drawdown_months must be <= min_overlap_months"}
	}
	if !(cfg.Analyzer.Epsilon > 0) {
		return ValidationError{"analyzer.epsilon", "must be > 0"}
	}

	// === Classifier ===
	cuts := cfg.Classifier.Cuts
	if want := len(contracts.DefenseClasses()) - 1; len(cuts) != want {
		return ValidationError{"classifier.cuts", fmt.Sprintf("need %d cut points, got %d", want, len(cuts))}
	}
	for i, cut := range cuts {
		if math.IsNaN(cut) || math.IsInf(cut, 0) {
			return ValidationError{fmt.Sprintf("classifier.cuts[%d]", i), "must be finite"}
		}
		if i > 0 && cut <= cuts[i-1] {
			return ValidationError{
				Field:   fmt.Sprintf("classifier.cuts[%d]", i),
				Message: fmt.Sprintf("must be > %.4f", cuts[i-1]),
			}
		}
	}

	// === Overrides ===
	for symbol, label := range cfg.Overrides {
		if strings.TrimSpace(symbol) == "" {
			return ValidationError{"overrides", "empty symbol"}
		}
		if _, err := contracts.ParseDefenseClass(label); err != nil {
			return ValidationError{fmt.Sprintf("overrides.%s", symbol), err.Error()}
		}
	}

	return nil
}
