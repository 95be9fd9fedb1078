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

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Purge old delivery ledger rows periodically",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, stores, p, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer stores.Close()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("retention worker started",
			zap.Int("days", cfg.Webhook.EventsRetentionDays),
			zap.Duration("interval", p.Purger.Interval),
		)
		return p.Purger.Run(ctx)
	},
}
