package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-defense/internal/api"
	"github.com/wonny/aegis-defense/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `저장된 분류 결과를 조회하는 REST API 서버를 시작합니다.

Endpoints:
  GET  /health                               - Health check
  GET  /api/defense/latest[?class=HEDGE]     - 최근 run 전체
  GET  /api/defense/classes                  - 분류 목록 + regime 가중치
  GET  /api/defense/classifications/{symbol} - 종목별 분류
  GET  /metrics                              - Prometheus (METRICS_ENABLED)

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8090`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), "=== Aegis Defense API Server ===")

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	deps := api.RouterDeps{
		Defense: handlers.NewDefenseHandler(a.classificationRepo(), a.log),
		DB:      a.db,
	}
	if a.cfg.MetricsEnabled {
		deps.Metrics = a.metrics.Handler()
	}

	server := api.New(a.cfg, a.log, api.NewRouter(deps, a.log))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "\n✅ Server running on http://localhost%s\nPress Ctrl+C to stop\n", server.Addr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
