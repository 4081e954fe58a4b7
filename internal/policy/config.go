package policy

import (
	"github.com/wonny/aegis-defense/internal/contracts"
	"github.com/wonny/aegis-defense/internal/defense"
	pkgconfig "github.com/wonny/aegis-defense/pkg/config"
)

// Config는 drawdown defense 분류 정책의 전체 설정
type Config struct {
	Meta       Meta              `yaml:"meta" json:"meta"`
	Backtest   Backtest          `yaml:"backtest" json:"backtest"`
	Detector   Detector          `yaml:"detector" json:"detector"`
	Analyzer   Analyzer          `yaml:"analyzer" json:"analyzer"`
	Classifier Classifier        `yaml:"classifier" json:"classifier"`
	Overrides  map[string]string `yaml:"overrides" json:"overrides"` // symbol -> class label
}

// Meta 메타 정보
type Meta struct {
	PolicyID  string `yaml:"policy_id" json:"policy_id"`
	Version   string `yaml:"version" json:"version"`
	Benchmark string `yaml:"benchmark" json:"benchmark"`
}

// Backtest 배치 실행 파라미터
type Backtest struct {
	LookbackYears   int `yaml:"lookback_years" json:"lookback_years"`
	MinObservations int `yaml:"min_observations" json:"min_observations"`
	Workers         int `yaml:"workers" json:"workers"`
}

// Detector 벤치마크 drawdown 감지
type Detector struct {
	DrawdownThreshold float64 `yaml:"drawdown_threshold" json:"drawdown_threshold"`
}

// Analyzer capture 분석 최소 데이터 조건
type Analyzer struct {
	MinOverlapMonths  int     `yaml:"min_overlap_months" json:"min_overlap_months"`
	MinDrawdownMonths int     `yaml:"min_drawdown_months" json:"min_drawdown_months"`
	Epsilon           float64 `yaml:"epsilon" json:"epsilon"`
}

// Classifier downside capture 구간 경계 (HEDGE | DEFENSIVE | MODERATE | CYCLICAL | AMPLIFIER)
type Classifier struct {
	Cuts []float64 `yaml:"cuts" json:"cuts"`
}

// Default returns the built-in policy
func Default() *Config {
	engine := defense.DefaultConfig()
	return &Config{
		Meta: Meta{
			PolicyID:  "drawdown_defense_default",
			Version:   "1",
			Benchmark: "SPY",
		},
		Backtest: Backtest{
			LookbackYears:   engine.LookbackYears,
			MinObservations: engine.MinObservations,
			Workers:         engine.Workers,
		},
		Detector: Detector{DrawdownThreshold: engine.DrawdownThreshold},
		Analyzer: Analyzer{
			MinOverlapMonths:  engine.Analyzer.MinOverlapMonths,
			MinDrawdownMonths: engine.Analyzer.MinDrawdownMonths,
			Epsilon:           engine.Analyzer.Epsilon,
		},
		Classifier: Classifier{Cuts: defense.DefaultPolicy().Cuts},
	}
}

// FromEnv builds a policy from the DEFENSE_* environment settings
func FromEnv(dc pkgconfig.DefenseConfig) *Config {
	cfg := Default()
	cfg.Meta.PolicyID = "env"
	cfg.Meta.Benchmark = dc.Benchmark
	cfg.Backtest.LookbackYears = dc.LookbackYears
	cfg.Backtest.MinObservations = dc.MinObservations
	cfg.Backtest.Workers = dc.Workers
	cfg.Detector.DrawdownThreshold = dc.DrawdownThreshold
	return cfg
}

// Resolve loads DEFENSE_POLICY_FILE when set, otherwise falls back to the environment
func Resolve(dc pkgconfig.DefenseConfig) (*Config, error) {
	if dc.PolicyFile == "" {
		cfg := FromEnv(dc)
		if err := Validate(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg, _, err := Load(dc.PolicyFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToEngine converts the policy into backtester inputs
func (c *Config) ToEngine() (defense.Config, defense.Policy) {
	engine := defense.Config{
		LookbackYears:     c.Backtest.LookbackYears,
		DrawdownThreshold: c.Detector.DrawdownThreshold,
		MinObservations:   c.Backtest.MinObservations,
		Analyzer: defense.AnalyzerConfig{
			MinOverlapMonths:  c.Analyzer.MinOverlapMonths,
			MinDrawdownMonths: c.Analyzer.MinDrawdownMonths,
			Epsilon:           c.Analyzer.Epsilon,
		},
		Workers: c.Backtest.Workers,
	}

	cuts := append([]float64(nil), c.Classifier.Cuts...)
	return engine, defense.Policy{Classes: contracts.DefenseClasses(), Cuts: cuts}
}

// MergeOverrides layers static policy overrides on top of stored ones
// 정책 파일의 override가 DB 값보다 우선
func (c *Config) MergeOverrides(stored map[string]string) map[string]string {
	merged := make(map[string]string, len(stored)+len(c.Overrides))
	for symbol, label := range stored {
		merged[symbol] = label
	}
	for symbol, label := range c.Overrides {
		merged[symbol] = label
	}
	return merged
}
