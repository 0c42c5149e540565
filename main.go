package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gtoxlili/echoStock/config"
	"github.com/gtoxlili/echoStock/logger"
	"github.com/gtoxlili/echoStock/report"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "echostock",
	Short: "Price-triggered AI stock trading monitor",
	Long: `echostock watches a set of symbols, asks a decision service what to do when a
price moves past its threshold, and trades within risk limits through the broker,
falling back to simulated fills when the broker is unavailable.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the monitoring loop",
	RunE:  runMonitor,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the profit report from persisted history",
	RunE:  runReport,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML configuration file")
	rootCmd.AddCommand(runCmd, reportCmd)
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Close()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m, cleanup, err := buildMonitor(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.App.MetricsAddr != "" {
		go func() {
			if err := m.Metrics().Serve(ctx, cfg.App.MetricsAddr); err != nil {
				logrus.WithError(err).Error("Metrics server stopped")
			}
		}()
	}
	return m.Run(ctx)
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	l, store, err := openLedger(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	fmt.Print(report.Render(report.Generate(l.Snapshot())))

	daily, err := store.DailyLogs(cmd.Context(), 7)
	if err != nil {
		return err
	}
	for _, d := range daily {
		fmt.Printf("%s  net %s  profit %s  return %.2f%%\n",
			d.Date, d.NetAssets.StringFixed(2), d.DailyProfit.StringFixed(2), d.DailyReturnPct)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
