package cmd

import (
	"fmt"

	"github.com/jmehdipour/activitylog-webhook/internal/db"
	"github.com/jmehdipour/activitylog-webhook/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations (dev: DROP & CREATE tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}

		sqlDB, err := db.NewMySQLConnection(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		files, err := migrations.MySQL()
		if err != nil {
			return fmt.Errorf("read migrations: %w", err)
		}

		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 0"); err != nil {
			return fmt.Errorf("disable fk checks: %w", err)
		}
		for _, f := range files {
			if _, err := sqlDB.Exec(f.SQL); err != nil {
				_, _ = sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1")
				return fmt.Errorf("exec migration %s: %w", f.Name, err)
			}
			log.Info("migration applied", zap.String("file", f.Name))
		}
		if _, err := sqlDB.Exec("SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			return fmt.Errorf("enable fk checks: %w", err)
		}

		chDB, err := db.NewClickHouseConnection(cfg.ClickHouse)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		if chDB == nil {
			log.Info("clickhouse not configured, skipping read model")
			return nil
		}
		defer chDB.Close()

		chFiles, err := migrations.ClickHouse()
		if err != nil {
			return fmt.Errorf("read clickhouse migrations: %w", err)
		}
		for _, f := range chFiles {
			for _, stmt := range f.Statements() {
				if _, err := chDB.Exec(stmt); err != nil {
					return fmt.Errorf("exec clickhouse migration %s: %w", f.Name, err)
				}
			}
			log.Info("clickhouse migration applied", zap.String("file", f.Name))
		}
		return nil
	},
}
