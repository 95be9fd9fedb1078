package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/payload"
	"github.com/jmehdipour/activitylog-webhook/internal/util"
	"go.uber.org/zap"
)

type Finder interface {
	FindSubscribers(ctx context.Context, topic model.Topic, scope string) ([]model.SubscriberRef, error)
}

// Submitter hands a job to the delivery scheduler.
type Submitter interface {
	Submit(ctx context.Context, job model.Job) error
}

// Handler is the activity-log observer that fans an entry out to the
// subscriptions listening for its topic. It only matches and enqueues.
type Handler struct {
	finder    Finder
	builder   *payload.Builder
	encoder   payload.Encoder
	submitter Submitter
	logger    *zap.Logger

	Now   func() time.Time
	NewID func() string
}

func NewHandler(f Finder, b *payload.Builder, enc payload.Encoder, s Submitter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		finder:    f,
		builder:   b,
		encoder:   enc,
		submitter: s,
		logger:    logger,
		Now:       func() time.Time { return time.Now().UTC() },
		NewID:     util.New,
	}
}

// OnActivity implements activity.Listener.
func (h *Handler) OnActivity(ctx context.Context, entry model.ActivityLog, created bool) {
	n, err := h.Handle(ctx, entry, created)
	if err != nil {
		h.logger.Error("webhook: fan-out failed",
			zap.Int64("entry_id", entry.ID),
			zap.String("scope", entry.Scope),
			zap.String("topic", entry.ActionType),
			zap.Error(err),
		)
		return
	}
	if n > 0 {
		h.logger.Debug("webhook: deliveries enqueued", zap.String("topic", entry.ActionType), zap.Int("count", n))
	}
}

// Handle enqueues one delivery per matching subscription and returns how many
// were enqueued. Updates (created=false) are ignored. A payload that cannot be
// encoded is dropped for that subscription before anything is sent.
func (h *Handler) Handle(ctx context.Context, entry model.ActivityLog, created bool) (int, error) {
	if !created {
		return 0, nil
	}

	refs, err := h.finder.FindSubscribers(ctx, entry.Topic(), entry.Scope)
	if err != nil {
		return 0, fmt.Errorf("match subscribers: %w", err)
	}
	if len(refs) == 0 {
		return 0, nil
	}

	doc, err := h.builder.Build(entry)
	if err != nil {
		return 0, fmt.Errorf("build payload: %w", err)
	}

	now := h.Now()
	var (
		enqueued int
		errs     []error
	)
	for _, ref := range refs {
		body, err := h.encoder.Encode(doc.ForSubscription(ref.UUID))
		if err != nil {
			metrics.DeliveriesTotal.WithLabelValues("unencodable").Inc()
			h.logger.Error("webhook: payload not encodable, delivery dropped",
				zap.Int64("entry_id", entry.ID),
				zap.Int64("subscription_id", ref.ID),
				zap.String("topic", entry.ActionType),
				zap.String("encoder", h.encoder.Name()),
				zap.Error(err),
			)
			continue
		}

		job := model.Job{
			DeliveryID:       h.NewID(),
			SubscriptionID:   ref.ID,
			SubscriptionUUID: ref.UUID,
			Topic:            entry.ActionType,
			Payload:          body,
			Attempt:          1,
			NextAttemptAt:    now,
		}
		if err := h.submitter.Submit(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("submit subscription %d: %w", ref.ID, err))
			continue
		}
		enqueued++
	}

	return enqueued, errors.Join(errs...)
}
