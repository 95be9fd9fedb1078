package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmoiron/sqlx"
)

// SecretsRepository stores the signing secrets of subscriptions. Several may
// coexist during a rotation; Latest is the one used for signing.
type SecretsRepository interface {
	Create(ctx context.Context, tx *sqlx.Tx, subscriptionID int64, token string) (model.Secret, error)
	Latest(ctx context.Context, subscriptionID int64) (*model.Secret, error)
	List(ctx context.Context, subscriptionID int64) ([]model.Secret, error)
	Delete(ctx context.Context, subscriptionID, id int64) error
}

type secretsRepo struct {
	db *sqlx.DB
}

func NewSecretsRepository(db *sqlx.DB) SecretsRepository { return &secretsRepo{db: db} }

func (r *secretsRepo) Create(ctx context.Context, tx *sqlx.Tx, subscriptionID int64, token string) (model.Secret, error) {
	if err := model.ValidateSecretToken(token); err != nil {
		return model.Secret{}, err
	}
	sec := model.Secret{SubscriptionID: subscriptionID, Token: token, CreatedAt: now()}
	err := withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO subscription_secrets (subscription_id, token, created_at)
			VALUES (?, ?, ?)
		`, subscriptionID, token, sec.CreatedAt)
		if err != nil {
			return err
		}
		sec.ID, err = res.LastInsertId()
		return err
	})
	return sec, err
}

// Latest returns the most recently created secret, or (nil, nil) when the
// subscription has none. Ties on created_at are broken by id.
func (r *secretsRepo) Latest(ctx context.Context, subscriptionID int64) (*model.Secret, error) {
	var s model.Secret
	err := r.db.GetContext(ctx, &s, `
		SELECT id, subscription_id, token, created_at
		  FROM subscription_secrets
		 WHERE subscription_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1
	`, subscriptionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *secretsRepo) List(ctx context.Context, subscriptionID int64) ([]model.Secret, error) {
	out := []model.Secret{}
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, subscription_id, token, created_at
		  FROM subscription_secrets
		 WHERE subscription_id = ?
		 ORDER BY created_at DESC, id DESC
	`, subscriptionID)
	return out, err
}

func (r *secretsRepo) Delete(ctx context.Context, subscriptionID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM subscription_secrets WHERE id = ? AND subscription_id = ?`, id, subscriptionID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
