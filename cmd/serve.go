package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/app"
	httpSrv "github.com/jmehdipour/activitylog-webhook/internal/http"
	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP server (and the delivery scheduler when scheduler.embedded is set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		stores, err := app.Connect(cfg)
		if err != nil {
			return err
		}
		defer stores.Close()

		p, err := app.New(cfg, stores, log)
		if err != nil {
			return err
		}

		metrics.MustRegister(prometheus.DefaultRegisterer)

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Subscriptions: p.Subscriptions,
			Activity:      p.Activity,
			Redis:         stores.Redis,
			Logger:        log.Named("http"),
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var bg sync.WaitGroup
		if cfg.Scheduler.Embedded {
			bg.Add(2)
			go func() {
				defer bg.Done()
				_ = p.Scheduler.Run(ctx)
			}()
			go func() {
				defer bg.Done()
				_ = p.Purger.Run(ctx)
			}()
			log.Info("embedded scheduler started",
				zap.String("queue", cfg.Scheduler.Queue),
				zap.Int("workers", p.Scheduler.Workers),
			)
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		select {
		case <-ctx.Done():
			log.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil {
				log.Error("http server exited", zap.Error(err))
			}
			stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		bg.Wait()

		return nil
	},
}
