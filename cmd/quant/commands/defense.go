package commands

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-defense/internal/policy"
	"github.com/wonny/aegis-defense/internal/store"
)

// defenseCmd represents the defense command
var defenseCmd = &cobra.Command{
	Use:   "defense",
	Short: "Drawdown defense 분류",
	Long: `벤치마크 drawdown 기반 방어력 분류를 실행하거나 조회합니다.

Subcommands:
  run     - 백테스트 실행 후 저장
  show    - 최근 분류 결과 조회
  policy  - 적용될 정책과 해시 출력

Example:
  go run ./cmd/quant defense run
  go run ./cmd/quant defense run --lookback 10 --dry-run
  go run ./cmd/quant defense show
  go run ./cmd/quant defense show TLT`,
}

var (
	runLookback  int
	runThreshold float64
	runWorkers   int
	runBenchmark string
	runDryRun    bool
)

var (
	defenseRunCmd = &cobra.Command{
		Use:   "run",
		Short: "백테스트 실행",
		Long: `유니버스 전체의 가격 이력을 로드해 분류하고 결과를 저장합니다.

플래그로 정책 값을 이번 실행에 한해 덮어쓸 수 있습니다.
--dry-run 은 결과를 출력만 하고 저장하지 않습니다.`,
		RunE: runDefenseBacktest,
	}

	defenseShowCmd = &cobra.Command{
		Use:   "show [symbol]",
		Short: "최근 분류 결과 조회",
		Args:  cobra.MaximumNArgs(1),
		RunE:  showDefense,
	}

	defensePolicyCmd = &cobra.Command{
		Use:   "policy",
		Short: "정책 확인",
		RunE:  showPolicy,
	}
)

func init() {
	rootCmd.AddCommand(defenseCmd)
	defenseCmd.AddCommand(defenseRunCmd)
	defenseCmd.AddCommand(defenseShowCmd)
	defenseCmd.AddCommand(defensePolicyCmd)

	defenseRunCmd.Flags().IntVar(&runLookback, "lookback", 0, "lookback years (0 = policy)")
	defenseRunCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "drawdown threshold, negative (0 = policy)")
	defenseRunCmd.Flags().IntVar(&runWorkers, "workers", 0, "parallel workers (0 = policy)")
	defenseRunCmd.Flags().StringVar(&runBenchmark, "benchmark", "", "benchmark symbol (empty = policy)")
	defenseRunCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "print without saving")
}

// applyRunFlags overrides policy values for this run and re-validates
func applyRunFlags(pol *policy.Config) error {
	if runLookback != 0 {
		pol.Backtest.LookbackYears = runLookback
	}
	if runThreshold != 0 {
		pol.Detector.DrawdownThreshold = runThreshold
	}
	if runWorkers != 0 {
		pol.Backtest.Workers = runWorkers
	}
	if runBenchmark != "" {
		pol.Meta.Benchmark = strings.ToUpper(runBenchmark)
	}
	return policy.Validate(pol)
}

func runDefenseBacktest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := applyRunFlags(a.policy); err != nil {
		return fmt.Errorf("invalid run flags: %w", err)
	}

	job, err := a.backtestJob()
	if err != nil {
		return fmt.Errorf("init backtest job: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== Aegis Defense Backtest (benchmark %s, policy %s) ===\n", a.policy.Meta.Benchmark, job.PolicyHash()[:12])

	result, err := job.Execute(ctx, !runDryRun)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	PrintResult(out, result)
	if runDryRun {
		PrintWarning(out, "dry run: result not saved")
	} else {
		PrintSuccess(out, "Result saved")
	}
	return nil
}

func showDefense(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	repo := a.classificationRepo()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		symbol := strings.ToUpper(args[0])
		rec, runDate, err := repo.GetClassification(ctx, symbol)
		if errors.Is(err, store.ErrNotFound) {
			PrintWarning(out, fmt.Sprintf("%s not classified in the latest run", symbol))
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Run date: %s\n\n", runDate.Format("2006-01-02"))
		PrintTableHeader(out, classificationColumns, classificationWidths)
		PrintTableRow(out, classificationRow(symbol, *rec), classificationWidths)
		fmt.Fprintf(out, "\nRegime adjustment: %+d\n", rec.Classification.RegimeAdjustment())
		return nil
	}

	result, err := repo.GetLatestResult(ctx)
	if errors.Is(err, store.ErrNotFound) {
		PrintWarning(out, "No backtest run stored yet")
		return nil
	}
	if err != nil {
		return err
	}
	PrintResult(out, result)
	return nil
}

func showPolicy(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pol, err := policy.Resolve(cfg.Defense)
	if err != nil {
		return err
	}
	hash, err := policy.Hash(pol)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	PrintKeyValue(out, "Policy", pol.Meta.PolicyID, 18)
	PrintKeyValue(out, "Hash", hash, 18)
	PrintKeyValue(out, "Benchmark", pol.Meta.Benchmark, 18)
	PrintKeyValue(out, "Lookback years", fmt.Sprintf("%d", pol.Backtest.LookbackYears), 18)
	PrintKeyValue(out, "Min observations", fmt.Sprintf("%d", pol.Backtest.MinObservations), 18)
	PrintKeyValue(out, "Drawdown threshold", fmt.Sprintf("%.4f", pol.Detector.DrawdownThreshold), 18)
	PrintKeyValue(out, "Cuts", fmt.Sprintf("%v", pol.Classifier.Cuts), 18)
	PrintKeyValue(out, "Static overrides", fmt.Sprintf("%d", len(pol.Overrides)), 18)
	return nil
}
