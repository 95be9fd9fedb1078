package subscription

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"github.com/jmehdipour/activitylog-webhook/internal/util"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

var ErrInvalidTopic = errors.New("unknown topic")

// Invalidator drops cached topic matches after subscription writes.
type Invalidator interface {
	Invalidate(ctx context.Context, scope string, topics ...model.Topic) error
}

// Input carries the editable fields of a subscription. Nil fields are left
// unchanged on update.
type Input struct {
	URL    *string
	Active *bool
	Topics []string // nil keeps the current set
	Secret string   // create only; generated when empty
}

// Service is the administrative surface over the subscription store: every
// write for a subscription and its topics happens in one transaction.
type Service struct {
	db         *sqlx.DB
	subs       repository.SubscriptionsRepository
	secrets    repository.SecretsRepository
	deliveries repository.DeliveriesReader
	cache      Invalidator
	logger     *zap.Logger
}

func New(
	db *sqlx.DB,
	subs repository.SubscriptionsRepository,
	secrets repository.SecretsRepository,
	deliveries repository.DeliveriesReader,
	cache Invalidator,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, subs: subs, secrets: secrets, deliveries: deliveries, cache: cache, logger: logger}
}

func parseTopics(in []string) ([]model.Topic, error) {
	out := make([]model.Topic, 0, len(in))
	for _, s := range in {
		t, ok := model.ParseTopic(s)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, s)
		}
		out = append(out, t)
	}
	return out, nil
}

// GenerateSecret returns a random URL-safe token of 32 characters.
func GenerateSecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Create stores a subscription, its topics and a first secret. The returned
// secret holds the plain token; it is not retrievable later.
func (s *Service) Create(ctx context.Context, scope string, in Input) (*model.Subscription, model.Secret, error) {
	if in.URL == nil {
		return nil, model.Secret{}, util.ErrInvalidWebhookURL
	}
	u, err := util.ValidateWebhookURL(*in.URL)
	if err != nil {
		return nil, model.Secret{}, err
	}
	topics, err := parseTopics(in.Topics)
	if err != nil {
		return nil, model.Secret{}, err
	}
	token := in.Secret
	if token == "" {
		if token, err = GenerateSecret(); err != nil {
			return nil, model.Secret{}, fmt.Errorf("generate secret: %w", err)
		}
	}
	if err := model.ValidateSecretToken(token); err != nil {
		return nil, model.Secret{}, err
	}

	sub := &model.Subscription{
		UUID:   uuid.NewString(),
		Scope:  scope,
		URL:    u,
		Active: in.Active == nil || *in.Active,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, model.Secret{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.subs.Create(ctx, tx, sub); err != nil {
		return nil, model.Secret{}, fmt.Errorf("insert subscription: %w", err)
	}
	if err := s.subs.ReplaceTopics(ctx, tx, sub.ID, topics); err != nil {
		return nil, model.Secret{}, err
	}
	secret, err := s.secrets.Create(ctx, tx, sub.ID, token)
	if err != nil {
		return nil, model.Secret{}, fmt.Errorf("insert secret: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, model.Secret{}, err
	}

	sub.Topics = dedupe(topics)
	s.invalidate(ctx, scope, sub.Topics)
	return sub, secret, nil
}

// Update changes url, active flag and topic set. Deactivation does not
// cancel retries already scheduled; each attempt re-checks the flag.
func (s *Service) Update(ctx context.Context, scope, id string, in Input) (*model.Subscription, error) {
	sub, err := s.subs.GetByUUID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	before := sub.Topics

	if in.URL != nil {
		if sub.URL, err = util.ValidateWebhookURL(*in.URL); err != nil {
			return nil, err
		}
	}
	if in.Active != nil {
		sub.Active = *in.Active
	}
	var topics []model.Topic
	if in.Topics != nil {
		if topics, err = parseTopics(in.Topics); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.subs.Update(ctx, tx, sub); err != nil {
		return nil, err
	}
	if in.Topics != nil {
		if err := s.subs.ReplaceTopics(ctx, tx, sub.ID, topics); err != nil {
			return nil, err
		}
		sub.Topics = dedupe(topics)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.invalidate(ctx, scope, append(before, sub.Topics...))
	return sub, nil
}

func (s *Service) Get(ctx context.Context, scope, id string) (*model.Subscription, error) {
	return s.subs.GetByUUID(ctx, scope, id)
}

func (s *Service) List(ctx context.Context, scope string, limit, offset int) ([]model.Subscription, error) {
	return s.subs.ListByScope(ctx, scope, limit, offset)
}

// Delete removes the subscription with its topics and secrets. Its delivery
// history stays, detached.
func (s *Service) Delete(ctx context.Context, scope, id string) error {
	sub, err := s.subs.GetByUUID(ctx, scope, id)
	if err != nil {
		return err
	}
	if err := s.subs.Delete(ctx, sub.ID); err != nil {
		return err
	}
	s.invalidate(ctx, scope, sub.Topics)
	return nil
}

// AddSecret adds a secret for rotation. The newest secret signs from now on;
// older ones stay until deleted.
func (s *Service) AddSecret(ctx context.Context, scope, id, token string) (model.Secret, error) {
	sub, err := s.subs.GetByUUID(ctx, scope, id)
	if err != nil {
		return model.Secret{}, err
	}
	if token == "" {
		if token, err = GenerateSecret(); err != nil {
			return model.Secret{}, fmt.Errorf("generate secret: %w", err)
		}
	}
	return s.secrets.Create(ctx, nil, sub.ID, token)
}

func (s *Service) ListSecrets(ctx context.Context, scope, id string) ([]model.Secret, error) {
	sub, err := s.subs.GetByUUID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	return s.secrets.List(ctx, sub.ID)
}

func (s *Service) DeleteSecret(ctx context.Context, scope, id string, secretID int64) error {
	sub, err := s.subs.GetByUUID(ctx, scope, id)
	if err != nil {
		return err
	}
	return s.secrets.Delete(ctx, sub.ID, secretID)
}

func (s *Service) ListDeliveries(ctx context.Context, scope, id string, status model.DeliveryStatus, limit, offset int) ([]model.DeliveryRecord, error) {
	sub, err := s.subs.GetByUUID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	return s.deliveries.ListBySubscription(ctx, sub.ID, status, limit, offset)
}

// FindDeliveries lists ledger rows across the scope, including rows whose
// subscription has been deleted. f.Scope is always overwritten by scope.
func (s *Service) FindDeliveries(ctx context.Context, scope string, f repository.DeliveryFilter, limit, offset int) ([]model.DeliveryRecord, error) {
	if scope == "" {
		return nil, repository.ErrNotFound
	}
	f.Scope = scope
	return s.deliveries.ListByFilter(ctx, f, limit, offset)
}

func (s *Service) invalidate(ctx context.Context, scope string, topics []model.Topic) {
	if s.cache == nil || len(topics) == 0 {
		return
	}
	if err := s.cache.Invalidate(ctx, scope, topics...); err != nil {
		s.logger.Warn("subscription: cache invalidation failed", zap.String("scope", scope), zap.Error(err))
	}
}

func dedupe(in []model.Topic) []model.Topic {
	seen := make(map[model.Topic]struct{}, len(in))
	out := make([]model.Topic, 0, len(in))
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
