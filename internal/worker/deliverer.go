package worker

import (
	"context"
	"errors"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/dispatcher"
	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"go.uber.org/zap"
)

// LedgerMode selects how retries show up in the delivery ledger.
type LedgerMode string

const (
	// LedgerChain keeps one row per delivery chain; each attempt overwrites
	// its status and attempt count.
	LedgerChain LedgerMode = "chain"
	// LedgerAttempt writes a row per attempt.
	LedgerAttempt LedgerMode = "attempt"
)

func ParseLedgerMode(s string) LedgerMode {
	if LedgerMode(s) == LedgerAttempt {
		return LedgerAttempt
	}
	return LedgerChain
}

type SubscriptionLoader interface {
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)
}

type SecretSource interface {
	Latest(ctx context.Context, subscriptionID int64) (*model.Secret, error)
}

type Ledger interface {
	InsertPending(ctx context.Context, rec *model.DeliveryRecord) error
	MarkAttempt(ctx context.Context, id int64, status model.DeliveryStatus, attempts int, lastErr string) error
}

// Deliverer performs one attempt of a delivery chain.
type Deliverer struct {
	Subscriptions SubscriptionLoader
	Secrets       SecretSource
	Ledger        Ledger // nil disables history
	Mode          LedgerMode
	Sender        dispatcher.Sender
	Policy        Policy
	Now           func() time.Time
	Logger        *zap.Logger
}

func (d *Deliverer) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

func (d *Deliverer) log() *zap.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return zap.NewNop()
}

// Process runs job and returns the follow-up job when the attempt failed and
// the policy allows another one. The returned error is the attempt's failure,
// if any. Missing or inactive subscriptions end the chain without an attempt.
func (d *Deliverer) Process(ctx context.Context, job model.Job) (*model.Job, error) {
	lg := d.log().With(
		zap.String("delivery_id", job.DeliveryID),
		zap.Int64("subscription_id", job.SubscriptionID),
		zap.String("topic", job.Topic),
		zap.Int("attempt", job.Attempt),
	)

	sub, err := d.Subscriptions.GetByID(ctx, job.SubscriptionID)
	if errors.Is(err, repository.ErrNotFound) {
		lg.Warn("webhook: subscription not found, skipping")
		metrics.DeliveriesTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}
	if err != nil {
		return d.failed(ctx, lg, job, 0, err)
	}
	if !sub.Active {
		lg.Warn("webhook: subscription is inactive, not firing", zap.String("url", sub.URL))
		metrics.DeliveriesTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}

	secret, err := d.Secrets.Latest(ctx, sub.ID)
	if err != nil {
		return d.failed(ctx, lg, job, 0, err)
	}
	token := ""
	if secret != nil {
		token = secret.Token
	} else {
		lg.Warn("webhook: subscription has no secret, sending unsigned")
	}

	rec := d.recordPending(ctx, lg, &job, sub)

	res, err := d.Sender.Send(ctx, dispatcher.Request{
		URL:              sub.URL,
		Body:             job.Payload,
		Secret:           token,
		DeliveryID:       job.DeliveryID,
		Attempt:          job.Attempt,
		Topic:            job.Topic,
		SubscriptionUUID: sub.UUID,
		Timestamp:        d.now(),
	})
	if err != nil {
		if errors.Is(err, dispatcher.ErrBreakerOpen) {
			metrics.AttemptsTotal.WithLabelValues("breaker_open").Inc()
		} else {
			metrics.AttemptsTotal.WithLabelValues("failure").Inc()
		}
		lg.Warn("webhook: request failed", zap.Int("status", res.StatusCode), zap.Error(err))
		return d.failed(ctx, lg, job, rec, err)
	}

	metrics.AttemptsTotal.WithLabelValues("success").Inc()
	metrics.DeliveriesTotal.WithLabelValues("success").Inc()
	d.mark(ctx, lg, rec, model.DeliverySuccess, job.Attempt, "")
	lg.Debug("webhook: delivered", zap.Int("status", res.StatusCode), zap.Duration("took", res.Duration))
	return nil, nil
}

// recordPending writes the pending ledger row for this attempt and returns
// its id, or 0 when history is off or the write failed.
func (d *Deliverer) recordPending(ctx context.Context, lg *zap.Logger, job *model.Job, sub *model.Subscription) int64 {
	if d.Ledger == nil {
		return 0
	}
	if d.Mode != LedgerAttempt && job.RecordID != 0 {
		return job.RecordID
	}

	subID := sub.ID
	rec := &model.DeliveryRecord{
		SubscriptionID: &subID,
		Scope:          sub.Scope,
		DeliveryID:     job.DeliveryID,
		Payload:        job.Payload,
		URL:            sub.URL,
		Topic:          job.Topic,
		Attempts:       job.Attempt,
		CreatedAt:      d.now(),
	}
	if err := d.Ledger.InsertPending(ctx, rec); err != nil {
		lg.Error("webhook: ledger insert failed", zap.Error(err))
		return 0
	}
	if d.Mode != LedgerAttempt {
		job.RecordID = rec.ID
	}
	return rec.ID
}

func (d *Deliverer) mark(ctx context.Context, lg *zap.Logger, id int64, status model.DeliveryStatus, attempt int, lastErr string) {
	if d.Ledger == nil || id == 0 {
		return
	}
	if err := d.Ledger.MarkAttempt(ctx, id, status, attempt, lastErr); err != nil {
		lg.Error("webhook: ledger update failed", zap.Int64("record_id", id), zap.Error(err))
	}
}

// failed records the failure and returns the next attempt unless the
// policy is exhausted.
func (d *Deliverer) failed(ctx context.Context, lg *zap.Logger, job model.Job, recID int64, cause error) (*model.Job, error) {
	d.mark(ctx, lg, recID, model.DeliveryFailure, job.Attempt, cause.Error())

	if d.Policy.Exhausted(job.Attempt) {
		metrics.DeliveriesTotal.WithLabelValues("exhausted").Inc()
		lg.Error("webhook: retries exhausted", zap.Error(cause))
		return nil, cause
	}

	delay := d.Policy.Delay(job.Attempt)
	next := job.Next(d.now().Add(delay))
	lg.Info("webhook: retry scheduled", zap.Duration("in", delay), zap.Time("at", next.NextAttemptAt))
	return &next, cause
}
