package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/kafka"
	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/jmehdipour/activitylog-webhook/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var ingestWorkers int

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Consume host activity-log entries from Kafka and fan them out",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, stores, p, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer stores.Close()

		metrics.MustRegister(prometheus.DefaultRegisterer)

		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		w := worker.NewIngest(consumer, p.Activity, log.Named("ingest"))
		if ingestWorkers > 0 {
			w.Workers = ingestWorkers
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info("ingest worker started",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
			zap.String("group", cfg.Kafka.GroupID),
			zap.Int("workers", w.Workers),
		)
		return w.Run(ctx)
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestWorkers, "workers", 0, "number of concurrent processors (default 8)")
}
