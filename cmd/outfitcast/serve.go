package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"outfitcast/internal/cmdlog"
	"outfitcast/internal/logging"
	"outfitcast/internal/metrics"
)

func init() {
	rootCmd.AddCommand(serveMetricsCmd)
}

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Expose /metrics and /health until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdlog.Run("serve_metrics", func() error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Metrics.Addr == "" {
				return errors.New("metrics.addr is empty")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			metrics.StartServer(cfg.Metrics.Addr)
			logging.Info("metrics_listening", map[string]any{"addr": cfg.Metrics.Addr})
			<-ctx.Done()
			return nil
		})
	},
}
