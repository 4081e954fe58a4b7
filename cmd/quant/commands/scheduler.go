package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-defense/internal/api"
	"github.com/wonny/aegis-defense/internal/api/handlers"
	"github.com/wonny/aegis-defense/internal/scheduler"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 즉시 실행합니다.

Subcommands:
  start   - 스케줄러 시작 (API 서버 포함)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)

Example:
  go run ./cmd/quant scheduler start
  go run ./cmd/quant scheduler run defense_backtest`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- defense_backtest: DEFENSE_SCHEDULE (기본: 매월 1일 19:00)

/metrics 가 켜져 있으면 같은 프로세스에서 API 서버를 함께 띄웁니다.
Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func initScheduler(a *app) (*scheduler.Scheduler, error) {
	job, err := a.backtestJob()
	if err != nil {
		return nil, fmt.Errorf("init backtest job: %w", err)
	}

	sched := scheduler.New(a.log)
	if err := sched.AddJob(job); err != nil {
		return nil, err
	}
	return sched, nil
}

func runScheduler(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== Aegis Defense Scheduler ===")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := initScheduler(a)
	if err != nil {
		return err
	}
	sched.Start()

	// 스케줄러 프로세스의 메트릭/조회 API
	var server *api.Server
	if a.cfg.MetricsEnabled {
		router := api.NewRouter(api.RouterDeps{
			Defense: handlers.NewDefenseHandler(a.classificationRepo(), a.log),
			DB:      a.db,
			Metrics: a.metrics.Handler(),
		}, a.log)
		server = api.New(a.cfg, a.log, router)
		go func() {
			if err := server.Start(); err != nil {
				a.log.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	PrintSuccess(out, "Scheduler started successfully")
	for _, name := range sched.GetAllJobs() {
		next, _ := sched.NextRun(name)
		fmt.Fprintf(out, "  - %s (next: %s)\n", name, next.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Fprintln(out, "\nShutting down scheduler...")
	sched.Stop()
	if server != nil {
		_ = server.Shutdown(cmd.Context())
	}
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := initScheduler(a)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Registered jobs:")
	for _, name := range sched.GetAllJobs() {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
	}
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]
	out := cmd.OutOrStdout()

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	sched, err := initScheduler(a)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Running job: %s\n", jobName)
	result, err := sched.RunJobSync(cmd.Context(), jobName)
	if err != nil {
		return err
	}

	PrintSuccess(out, fmt.Sprintf("Job %s completed in %s (%d attempt(s))", jobName, result.Duration, result.Attempts))
	return nil
}
