package cmd

import (
	"fmt"

	"github.com/jmehdipour/activitylog-webhook/internal/db"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"github.com/jmehdipour/activitylog-webhook/internal/retention"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var purgeDays int

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete delivery ledger rows older than the retention window once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		days := cfg.Webhook.EventsRetentionDays
		if purgeDays > 0 {
			days = purgeDays
		}
		p := retention.NewPurger(repository.NewDeliveriesRepository(sqlDB), days, log.Named("retention"))

		n, err := p.PurgeOnce(cmd.Context())
		if err != nil {
			return err
		}
		log.Info("purge completed", zap.Int("days", days), zap.Int64("deleted", n))
		return nil
	},
}

func init() {
	purgeCmd.Flags().IntVar(&purgeDays, "days", 0, "override webhook.events_retention_days")
}
