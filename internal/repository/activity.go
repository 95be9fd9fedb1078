package repository

import (
	"context"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmoiron/sqlx"
)

// ActivityRepository persists host activity-log entries (activity_log table).
type ActivityRepository interface {
	// Insert writes a single entry and sets its ID. If tx is nil, it will
	// open/commit an internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, entry *model.ActivityLog) error
}

// ActivityRepositoryImpl is a sqlx-backed implementation.
type ActivityRepositoryImpl struct {
	db *sqlx.DB
}

// NewActivityRepository constructs an ActivityRepositoryImpl.
func NewActivityRepository(db *sqlx.DB) *ActivityRepositoryImpl {
	return &ActivityRepositoryImpl{db: db}
}

func (r *ActivityRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, entry *model.ActivityLog) error {
	const q = `
		INSERT INTO activity_log
		    (scope, action_type, content_type, object_id, actor_code, actor_name, is_orga_action, data, timestamp)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now()
	}
	var code, name *string
	if entry.Actor != nil {
		code, name = &entry.Actor.Code, &entry.Actor.Name
	}
	var data []byte
	if len(entry.Data) > 0 {
		data = []byte(entry.Data)
	}

	return withTx(ctx, r.db, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q,
			entry.Scope, entry.ActionType, entry.ContentType, entry.ObjectID,
			code, name, entry.IsOrgaAction, data, entry.Timestamp.UTC(),
		)
		if err != nil {
			return err
		}
		entry.ID, err = res.LastInsertId()
		return err
	})
}
