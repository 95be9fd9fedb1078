package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/jmehdipour/activitylog-webhook/internal/worker"
	"go.uber.org/zap"
)

type Store interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Purger deletes ledger rows older than the retention window.
type Purger struct {
	Store      Store
	Days       int
	MaxRetries int           // extra tries after a failed purge
	Backoff    worker.Policy // delay between tries
	Interval   time.Duration // period of Run
	Now        func() time.Time
	Logger     *zap.Logger
}

func NewPurger(store Store, days int, logger *zap.Logger) *Purger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Purger{
		Store:      store,
		Days:       days,
		MaxRetries: 3,
		Backoff:    worker.Policy{Initial: time.Minute, Max: time.Hour, MaxAttempts: 4},
		Interval:   24 * time.Hour,
		Logger:     logger,
	}
}

func (p *Purger) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

// Cutoff is the creation time before which rows are purged.
func (p *Purger) Cutoff() time.Time {
	return p.now().AddDate(0, 0, -p.Days)
}

// PurgeOnce runs a single purge and returns how many rows were removed.
// Re-running it with nothing stale removes nothing.
func (p *Purger) PurgeOnce(ctx context.Context) (int64, error) {
	if p.Days <= 0 {
		return 0, fmt.Errorf("retention: invalid retention days %d", p.Days)
	}
	cutoff := p.Cutoff()
	n, err := p.Store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("purge deliveries older than %s: %w", cutoff.Format(time.RFC3339), err)
	}
	metrics.LedgerPurgedTotal.Add(float64(n))
	p.Logger.Info("retention: cleared webhook deliveries", zap.Time("cutoff", cutoff), zap.Int64("deleted", n))
	return n, nil
}

// PurgeWithRetry runs PurgeOnce and retries failures up to MaxRetries times,
// waiting the backoff delay in between.
func (p *Purger) PurgeWithRetry(ctx context.Context) (int64, error) {
	var total int64
	for try := 1; ; try++ {
		n, err := p.PurgeOnce(ctx)
		total += n
		if err == nil {
			return total, nil
		}
		if try > p.MaxRetries {
			return total, err
		}

		delay := p.Backoff.Delay(try)
		p.Logger.Warn("retention: purge failed, retrying",
			zap.Int("try", try), zap.Duration("in", delay), zap.Error(err))

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return total, ctx.Err()
		case <-t.C:
		}
	}
}

// Run purges immediately and then every Interval until ctx is cancelled.
func (p *Purger) Run(ctx context.Context) error {
	interval := p.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		if _, err := p.PurgeWithRetry(ctx); err != nil && ctx.Err() == nil {
			p.Logger.Error("retention: purge gave up", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}
