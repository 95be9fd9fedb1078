package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run the retry scheduler and deliver due webhook jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, stores, p, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer stores.Close()

		if cfg.Scheduler.Queue == "memory" {
			log.Warn("memory queue only sees jobs submitted in this process")
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		// graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("deliver worker started",
			zap.String("queue", cfg.Scheduler.Queue),
			zap.Int("workers", p.Scheduler.Workers),
			zap.Duration("poll_interval", p.Scheduler.PollInterval),
			zap.Int("max_attempts", cfg.Webhook.MaxAttempts),
		)
		return p.Scheduler.Run(ctx)
	},
}
