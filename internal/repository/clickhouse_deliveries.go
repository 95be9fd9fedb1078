package repository

import (
	"context"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// chDeliveriesRepository lists ledger rows from the ClickHouse read model
// (webhooks.deliveries_latest). Nothing in this module writes it: rows arrive
// through an external CDC feed from webhook_deliveries.
type chDeliveriesRepository struct {
	ch *sqlx.DB
}

func NewCHDeliveriesRepository(ch *sqlx.DB) DeliveriesReader {
	return &chDeliveriesRepository{ch: ch}
}

func (r *chDeliveriesRepository) ListBySubscription(ctx context.Context, subscriptionID int64, status model.DeliveryStatus, limit, offset int) ([]model.DeliveryRecord, error) {
	limit, offset = clampPage(limit, offset)

	q := `
		SELECT ` + deliveryColumns + `
		FROM webhooks.deliveries_latest
		WHERE subscription_id = ?
	`
	args := []any{subscriptionID}

	if status != "" {
		q += " AND status = ?"
		args = append(args, status.String())
	}

	q += " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows := []model.DeliveryRecord{}
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chDeliveriesRepository) ListByFilter(ctx context.Context, f DeliveryFilter, limit, offset int) ([]model.DeliveryRecord, error) {
	limit, offset = clampPage(limit, offset)

	where, args := f.where()
	q := `SELECT ` + deliveryColumns + ` FROM webhooks.deliveries_latest WHERE ` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows := []model.DeliveryRecord{}
	if err := r.ch.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

// fallbackDeliveriesReader reads the primary (ClickHouse) copy and answers
// from the fallback (MySQL) ledger when the primary errors, e.g. a missing
// table, or has nothing on the first page, e.g. a CDC feed not yet running.
type fallbackDeliveriesReader struct {
	primary  DeliveriesReader
	fallback DeliveriesReader
	logger   *zap.Logger
}

func NewFallbackDeliveriesReader(primary, fallback DeliveriesReader, logger *zap.Logger) DeliveriesReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &fallbackDeliveriesReader{primary: primary, fallback: fallback, logger: logger}
}

func (r *fallbackDeliveriesReader) ListBySubscription(ctx context.Context, subscriptionID int64, status model.DeliveryStatus, limit, offset int) ([]model.DeliveryRecord, error) {
	rows, err := r.primary.ListBySubscription(ctx, subscriptionID, status, limit, offset)
	if r.useFallback(rows, err, offset) {
		return r.fallback.ListBySubscription(ctx, subscriptionID, status, limit, offset)
	}
	return rows, nil
}

func (r *fallbackDeliveriesReader) ListByFilter(ctx context.Context, f DeliveryFilter, limit, offset int) ([]model.DeliveryRecord, error) {
	rows, err := r.primary.ListByFilter(ctx, f, limit, offset)
	if r.useFallback(rows, err, offset) {
		return r.fallback.ListByFilter(ctx, f, limit, offset)
	}
	return rows, nil
}

func (r *fallbackDeliveriesReader) useFallback(rows []model.DeliveryRecord, err error, offset int) bool {
	if err != nil {
		r.logger.Warn("ledger: read model unavailable, reading mysql", zap.Error(err))
		return true
	}
	return len(rows) == 0 && offset <= 0
}
