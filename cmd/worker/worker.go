package worker

import (
	"fmt"

	"github.com/jmehdipour/activitylog-webhook/internal/app"
	"github.com/jmehdipour/activitylog-webhook/internal/config"
	"github.com/jmehdipour/activitylog-webhook/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewWorkerCmd returns the parent "worker" command.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background workers",
	}
	// attach subcommands
	cmd.AddCommand(deliverCmd)
	cmd.AddCommand(ingestCmd)
	cmd.AddCommand(retentionCmd)

	return cmd
}

// bootstrap loads config, connects the stores and builds the pipeline.
// The caller closes the returned stores.
func bootstrap(cmd *cobra.Command) (config.Config, *zap.Logger, app.Stores, *app.Pipeline, error) {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, nil, app.Stores{}, nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.Init(cfg.Log.Level)

	stores, err := app.Connect(cfg)
	if err != nil {
		return cfg, log, app.Stores{}, nil, err
	}
	p, err := app.New(cfg, stores, log)
	if err != nil {
		stores.Close()
		return cfg, log, app.Stores{}, nil, err
	}
	return cfg, log, stores, p, nil
}
