package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	policyFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis Defense - drawdown 방어력 분류 엔진",
	Long: `Aegis Defense Unified CLI

벤치마크 drawdown 구간에서의 downside capture로 종목을
HEDGE / DEFENSIVE / MODERATE / CYCLICAL / AMPLIFIER 로 분류합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant defense run --dry-run
  go run ./cmd/quant defense show TLT
  go run ./cmd/quant scheduler start
  go run ./cmd/quant api
  go run ./cmd/quant test-db`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&policyFile, "policy", "", "policy YAML (default: DEFENSE_POLICY_FILE or environment)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
