// Package app wires repositories, the webhook observer and the delivery
// pipeline from a loaded configuration.
package app

import (
	"fmt"

	"github.com/jmehdipour/activitylog-webhook/internal/activity"
	"github.com/jmehdipour/activitylog-webhook/internal/config"
	"github.com/jmehdipour/activitylog-webhook/internal/dispatcher"
	"github.com/jmehdipour/activitylog-webhook/internal/matcher"
	"github.com/jmehdipour/activitylog-webhook/internal/payload"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"github.com/jmehdipour/activitylog-webhook/internal/retention"
	"github.com/jmehdipour/activitylog-webhook/internal/service/subscription"
	"github.com/jmehdipour/activitylog-webhook/internal/service/webhook"
	"github.com/jmehdipour/activitylog-webhook/internal/worker"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Pipeline holds every long-lived component of the webhook system.
type Pipeline struct {
	Subscriptions *subscription.Service
	Activity      *activity.Log
	Matcher       *matcher.Matcher
	Handler       *webhook.Handler
	Queue         worker.Queue
	Scheduler     *worker.Scheduler
	Deliverer     *worker.Deliverer
	Purger        *retention.Purger
}

// Stores are the connections a pipeline runs on. ClickHouse and Redis are
// optional; without Redis the queue falls back to memory and the matcher
// runs uncached.
type Stores struct {
	MySQL      *sqlx.DB
	ClickHouse *sqlx.DB
	Redis      *redis.Client
}

func New(cfg config.Config, st Stores, logger *zap.Logger) (*Pipeline, error) {
	if st.MySQL == nil {
		return nil, fmt.Errorf("app: mysql connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// repos (MySQL)
	subsRepo := repository.NewSubscriptionsRepository(st.MySQL)
	secretsRepo := repository.NewSecretsRepository(st.MySQL)
	deliveriesRepo := repository.NewDeliveriesRepository(st.MySQL)
	activityRepo := repository.NewActivityRepository(st.MySQL)

	// ledger listing reads the ClickHouse copy when one is configured and
	// falls back to MySQL while that copy is missing or empty
	var ledgerReader repository.DeliveriesReader = deliveriesRepo
	if st.ClickHouse != nil {
		ledgerReader = repository.NewFallbackDeliveriesReader(
			repository.NewCHDeliveriesRepository(st.ClickHouse), deliveriesRepo, logger.Named("ledger"))
	}

	matchOpts := []matcher.Option{matcher.WithLogger(logger.Named("matcher"))}
	if cfg.Webhook.UseCache {
		if st.Redis == nil {
			return nil, fmt.Errorf("app: webhook.use_cache needs redis")
		}
		matchOpts = append(matchOpts, matcher.WithCache(st.Redis, cfg.Webhook.CacheTTL))
	}
	m := matcher.New(subsRepo, matchOpts...)

	queue, err := newQueue(cfg.Scheduler, st.Redis)
	if err != nil {
		return nil, err
	}

	enc, err := payload.NewEncoder(cfg.Webhook.PayloadEncoder)
	if err != nil {
		return nil, err
	}

	breakers := dispatcher.NewBreakers(cfg.Breaker.FailThreshold, cfg.Breaker.OpenFor, logger.Named("breaker"))
	d := &worker.Deliverer{
		Subscriptions: subsRepo,
		Secrets:       secretsRepo,
		Mode:          worker.ParseLedgerMode(cfg.Webhook.LedgerMode),
		Sender:        dispatcher.NewDispatcher(cfg.Webhook.Timeout, cfg.Webhook.UserAgent, breakers),
		Policy: worker.Policy{
			Initial:     cfg.Webhook.InitialBackoff,
			Max:         cfg.Webhook.MaxBackoff,
			MaxAttempts: cfg.Webhook.MaxAttempts,
		},
		Logger: logger.Named("deliverer"),
	}
	if cfg.Webhook.StoreEvents {
		d.Ledger = deliveriesRepo
	}

	sched := worker.NewScheduler(queue, d, logger.Named("scheduler"))
	if cfg.Scheduler.Workers > 0 {
		sched.Workers = cfg.Scheduler.Workers
	}
	if cfg.Scheduler.PollInterval > 0 {
		sched.PollInterval = cfg.Scheduler.PollInterval
	}
	if cfg.Scheduler.BatchSize > 0 {
		sched.BatchSize = cfg.Scheduler.BatchSize
	}

	h := webhook.NewHandler(m, payload.NewBuilder(cfg.Webhook.BaseURL), enc, sched, logger.Named("webhook"))

	log := activity.NewLog(activityRepo, logger.Named("activity"))
	log.Subscribe(h)

	purger := retention.NewPurger(deliveriesRepo, cfg.Webhook.EventsRetentionDays, logger.Named("retention"))
	if cfg.Retention.Interval > 0 {
		purger.Interval = cfg.Retention.Interval
	}
	if cfg.Retention.MaxRetries >= 0 {
		purger.MaxRetries = cfg.Retention.MaxRetries
	}

	return &Pipeline{
		Subscriptions: subscription.New(st.MySQL, subsRepo, secretsRepo, ledgerReader, m, logger.Named("subscription")),
		Activity:      log,
		Matcher:       m,
		Handler:       h,
		Queue:         queue,
		Scheduler:     sched,
		Deliverer:     d,
		Purger:        purger,
	}, nil
}

func newQueue(cfg config.SchedulerConfig, rdb *redis.Client) (worker.Queue, error) {
	switch cfg.Queue {
	case "", "redis":
		if rdb == nil {
			return nil, fmt.Errorf("app: scheduler.queue=redis needs redis")
		}
		return worker.NewRedisQueue(rdb, cfg.QueueKey), nil
	case "memory":
		return worker.NewMemoryQueue(), nil
	default:
		return nil, fmt.Errorf("app: unknown scheduler.queue %q", cfg.Queue)
	}
}
