package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmoiron/sqlx"
)

// DeliveriesReader lists ledger rows. Implemented by the MySQL ledger and the
// ClickHouse read model.
type DeliveriesReader interface {
	ListBySubscription(ctx context.Context, subscriptionID int64, status model.DeliveryStatus, limit, offset int) ([]model.DeliveryRecord, error)
	ListByFilter(ctx context.Context, f DeliveryFilter, limit, offset int) ([]model.DeliveryRecord, error)
}

// DeliveryFilter narrows a scope-wide ledger listing. Scope is required; empty
// fields are ignored.
type DeliveryFilter struct {
	Scope      string
	DeliveryID string
	URL        string
	Status     model.DeliveryStatus
	// DetachedOnly keeps rows whose subscription has been deleted.
	DetachedOnly bool
}

// where renders f as a WHERE clause (without the keyword) and its args.
func (f DeliveryFilter) where() (string, []any) {
	clause := "scope = ?"
	args := []any{f.Scope}
	if f.DeliveryID != "" {
		clause += " AND delivery_id = ?"
		args = append(args, f.DeliveryID)
	}
	if f.URL != "" {
		clause += " AND url = ?"
		args = append(args, f.URL)
	}
	if f.Status != "" {
		clause += " AND status = ?"
		args = append(args, f.Status.String())
	}
	if f.DetachedOnly {
		clause += " AND subscription_id IS NULL"
	}
	return clause, args
}

// DeliveriesRepository is the delivery ledger (webhook_deliveries table).
type DeliveriesRepository interface {
	DeliveriesReader
	InsertPending(ctx context.Context, rec *model.DeliveryRecord) error
	MarkAttempt(ctx context.Context, id int64, status model.DeliveryStatus, attempts int, lastErr string) error
	Get(ctx context.Context, id int64) (*model.DeliveryRecord, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type DeliveriesRepositoryImpl struct {
	db *sqlx.DB
}

func NewDeliveriesRepository(db *sqlx.DB) *DeliveriesRepositoryImpl {
	return &DeliveriesRepositoryImpl{db: db}
}

var _ DeliveriesRepository = (*DeliveriesRepositoryImpl)(nil)

const deliveryColumns = `id, subscription_id, scope, delivery_id, payload, status, url, topic, attempts, last_error, created_at, updated_at`

// InsertPending writes rec with status=pending and sets rec.ID.
// rec.CreatedAt is kept when set, otherwise stamped with the current time.
func (r *DeliveriesRepositoryImpl) InsertPending(ctx context.Context, rec *model.DeliveryRecord) error {
	const q = `
		INSERT INTO webhook_deliveries
		    (subscription_id, scope, delivery_id, payload, status, url, topic, attempts, created_at, updated_at)
		VALUES
		    (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	rec.UpdatedAt = rec.CreatedAt
	rec.Status = model.DeliveryPending

	res, err := r.db.ExecContext(ctx, q,
		rec.SubscriptionID, rec.Scope, rec.DeliveryID, []byte(rec.Payload), rec.Status.String(),
		rec.URL, rec.Topic, rec.Attempts, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rec.ID, err = res.LastInsertId()
	return err
}

// MarkAttempt overwrites status and attempt count with the latest attempt's outcome.
func (r *DeliveriesRepositoryImpl) MarkAttempt(ctx context.Context, id int64, status model.DeliveryStatus, attempts int, lastErr string) error {
	var errCol *string
	if lastErr != "" {
		errCol = &lastErr
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_deliveries
		   SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		 WHERE id = ?
	`, status.String(), attempts, errCol, now(), id)
	return err
}

func (r *DeliveriesRepositoryImpl) Get(ctx context.Context, id int64) (*model.DeliveryRecord, error) {
	var rec model.DeliveryRecord
	err := r.db.GetContext(ctx, &rec, `SELECT `+deliveryColumns+` FROM webhook_deliveries WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *DeliveriesRepositoryImpl) ListBySubscription(ctx context.Context, subscriptionID int64, status model.DeliveryStatus, limit, offset int) ([]model.DeliveryRecord, error) {
	limit, offset = clampPage(limit, offset)

	q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE subscription_id = ?`
	args := []any{subscriptionID}
	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows := []model.DeliveryRecord{}
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByFilter lists a scope's ledger rows, including those detached from a
// deleted subscription.
func (r *DeliveriesRepositoryImpl) ListByFilter(ctx context.Context, f DeliveryFilter, limit, offset int) ([]model.DeliveryRecord, error) {
	limit, offset = clampPage(limit, offset)

	where, args := f.where()
	q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE ` + where +
		` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows := []model.DeliveryRecord{}
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// PurgeOlderThan deletes ledger rows created before cutoff and returns how many went.
func (r *DeliveriesRepositoryImpl) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webhook_deliveries WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
