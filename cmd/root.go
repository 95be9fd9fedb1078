package cmd

import (
	"fmt"
	"os"

	"github.com/jmehdipour/activitylog-webhook/cmd/worker"
	"github.com/jmehdipour/activitylog-webhook/internal/config"
	"github.com/jmehdipour/activitylog-webhook/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "activitylog-webhook",
		Short: "Activity-log webhook fan-out",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}

// setup loads the config and initializes the global logger from it.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.Init(cfg.Log.Level), nil
}
