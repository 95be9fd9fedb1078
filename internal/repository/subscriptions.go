package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmoiron/sqlx"
)

// SubscriptionsRepository is the subscription store: endpoints, their active
// flag and the topic set each one listens for.
type SubscriptionsRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, s *model.Subscription) error
	Update(ctx context.Context, tx *sqlx.Tx, s *model.Subscription) error
	ReplaceTopics(ctx context.Context, tx *sqlx.Tx, subscriptionID int64, topics []model.Topic) error
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)
	GetByUUID(ctx context.Context, scope, uuid string) (*model.Subscription, error)
	ListByScope(ctx context.Context, scope string, limit, offset int) ([]model.Subscription, error)
	Delete(ctx context.Context, id int64) error
	FindActiveByTopic(ctx context.Context, scope string, topic model.Topic) ([]model.SubscriberRef, error)
}

type SubscriptionsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSubscriptionsRepository(db *sqlx.DB) *SubscriptionsRepositoryImpl {
	return &SubscriptionsRepositoryImpl{db: db}
}

var _ SubscriptionsRepository = (*SubscriptionsRepositoryImpl)(nil)

const subscriptionColumns = `id, uuid, scope, url, active, created_at, updated_at`

// Create inserts the subscription row and sets s.ID. Topics are stored separately.
func (r *SubscriptionsRepositoryImpl) Create(ctx context.Context, tx *sqlx.Tx, s *model.Subscription) error {
	const q = `
		INSERT INTO subscriptions (uuid, scope, url, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	ts := now()
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, s.UUID, s.Scope, s.URL, s.Active, ts, ts)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		s.ID = id
		s.CreatedAt, s.UpdatedAt = ts, ts
		return nil
	})
}

// Update writes url and active flag.
func (r *SubscriptionsRepositoryImpl) Update(ctx context.Context, tx *sqlx.Tx, s *model.Subscription) error {
	const q = `UPDATE subscriptions SET url = ?, active = ?, updated_at = ? WHERE id = ?`
	ts := now()
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, s.URL, s.Active, ts, s.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		s.UpdatedAt = ts
		return nil
	})
}

// ReplaceTopics swaps the subscription's topic set. Duplicates in topics are
// collapsed so that a (subscription, topic) pair is stored at most once.
func (r *SubscriptionsRepositoryImpl) ReplaceTopics(ctx context.Context, tx *sqlx.Tx, subscriptionID int64, topics []model.Topic) error {
	seen := make(map[model.Topic]struct{}, len(topics))
	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_topics WHERE subscription_id = ?`, subscriptionID); err != nil {
			return fmt.Errorf("clear topics: %w", err)
		}
		for _, t := range topics {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO subscription_topics (subscription_id, topic) VALUES (?, ?)`,
				subscriptionID, t.String(),
			); err != nil {
				return fmt.Errorf("insert topic %q: %w", t, err)
			}
		}
		return nil
	})
}

func (r *SubscriptionsRepositoryImpl) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.GetContext(ctx, &s, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? LIMIT 1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachTopics(ctx, []*model.Subscription{&s}); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionsRepositoryImpl) GetByUUID(ctx context.Context, scope, uuid string) (*model.Subscription, error) {
	var s model.Subscription
	err := r.db.GetContext(ctx, &s,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE uuid = ? AND scope = ? LIMIT 1`,
		uuid, scope,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.attachTopics(ctx, []*model.Subscription{&s}); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionsRepositoryImpl) ListByScope(ctx context.Context, scope string, limit, offset int) ([]model.Subscription, error) {
	limit, offset = clampPage(limit, offset)

	var rows []model.Subscription
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+subscriptionColumns+`
		  FROM subscriptions
		 WHERE scope = ?
		 ORDER BY id
		 LIMIT ? OFFSET ?
	`, scope, limit, offset); err != nil {
		return nil, err
	}

	ptrs := make([]*model.Subscription, len(rows))
	for i := range rows {
		ptrs[i] = &rows[i]
	}
	if err := r.attachTopics(ctx, ptrs); err != nil {
		return nil, err
	}
	return rows, nil
}

// attachTopics loads the topic sets of subs with a single IN query.
func (r *SubscriptionsRepositoryImpl) attachTopics(ctx context.Context, subs []*model.Subscription) error {
	if len(subs) == 0 {
		return nil
	}
	ids := make([]int64, len(subs))
	byID := make(map[int64]*model.Subscription, len(subs))
	for i, s := range subs {
		ids[i] = s.ID
		byID[s.ID] = s
		s.Topics = []model.Topic{}
	}

	query, args, err := sqlx.In(`
		SELECT subscription_id, topic
		  FROM subscription_topics
		 WHERE subscription_id IN (?)
		 ORDER BY topic
	`, ids)
	if err != nil {
		return err
	}
	query = r.db.Rebind(query)

	var pairs []struct {
		SubscriptionID int64  `db:"subscription_id"`
		Topic          string `db:"topic"`
	}
	if err := r.db.SelectContext(ctx, &pairs, query, args...); err != nil {
		return fmt.Errorf("load topics: %w", err)
	}
	for _, p := range pairs {
		if s, ok := byID[p.SubscriptionID]; ok {
			s.Topics = append(s.Topics, model.Topic(p.Topic))
		}
	}
	return nil
}

// Delete removes a subscription with its topics and secrets. Delivery history
// is kept and disassociated so the audit trail outlives the subscription.
func (r *SubscriptionsRepositoryImpl) Delete(ctx context.Context, id int64) error {
	return withTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_topics WHERE subscription_id = ?`, id); err != nil {
			return fmt.Errorf("delete topics: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM subscription_secrets WHERE subscription_id = ?`, id); err != nil {
			return fmt.Errorf("delete secrets: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE webhook_deliveries SET subscription_id = NULL WHERE subscription_id = ?`, id,
		); err != nil {
			return fmt.Errorf("detach deliveries: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// FindActiveByTopic returns active subscriptions of scope whose topic set contains topic.
func (r *SubscriptionsRepositoryImpl) FindActiveByTopic(ctx context.Context, scope string, topic model.Topic) ([]model.SubscriberRef, error) {
	refs := []model.SubscriberRef{}
	err := r.db.SelectContext(ctx, &refs, `
		SELECT s.id, s.uuid
		  FROM subscriptions s
		  JOIN subscription_topics t ON t.subscription_id = s.id
		 WHERE s.active = ? AND s.scope = ? AND t.topic = ?
	`, true, scope, topic.String())
	if err != nil {
		return nil, err
	}
	return refs, nil
}
