package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/activitylog-webhook/internal/db"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"github.com/jmehdipour/activitylog-webhook/internal/service/subscription"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	seedScope string
	seedURL   string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo subscriptions",
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

		subsRepo := repository.NewSubscriptionsRepository(sqlDB)
		svc := subscription.New(sqlDB, subsRepo, repository.NewSecretsRepository(sqlDB),
			repository.NewDeliveriesRepository(sqlDB), nil, log)

		return seedSubscriptions(cmd.Context(), svc, log, seedScope, seedURL)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedScope, "scope", "democon", "scope (event slug) of the demo subscriptions")
	seedCmd.Flags().StringVar(&seedURL, "url", "http://127.0.0.1:9000/hook", "receiver url of the demo subscriptions")
}

// seedSubscriptions creates a few demo subscriptions unless the scope
// already has some.
func seedSubscriptions(ctx context.Context, svc *subscription.Service, log *zap.Logger, scope, url string) error {
	existing, err := svc.List(ctx, scope, 1, 0)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(existing) > 0 {
		log.Info("scope already seeded", zap.String("scope", scope))
		return nil
	}

	demo := [][]model.Topic{
		{"submission.create", "submission.update", "submission.delete"},
		{"review.create", "review.update"},
		{"event.update"},
	}
	for _, topics := range demo {
		names := make([]string, 0, len(topics))
		for _, t := range topics {
			names = append(names, t.String())
		}
		sub, secret, err := svc.Create(ctx, scope, subscription.Input{URL: &url, Topics: names})
		if err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		// the secret is not retrievable later
		fmt.Printf("%s\t%s\t%v\n", sub.UUID, secret.Token, names)
	}
	log.Info("seed completed", zap.String("scope", scope), zap.Int("subscriptions", len(demo)))
	return nil
}
