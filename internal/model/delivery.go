package model

import (
	"encoding/json"
	"time"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailure DeliveryStatus = "failure"
)

func (s DeliveryStatus) String() string {
	return string(s)
}

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryPending || s == DeliverySuccess || s == DeliveryFailure
}

// Terminal reports whether no further attempt will touch a row in this status.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySuccess || s == DeliveryFailure
}

// DeliveryRecord is one row of the delivery ledger (webhook_deliveries table).
// SubscriptionID is nil once the subscription has been deleted; Scope stays
// so detached rows can still be listed by their tenant.
type DeliveryRecord struct {
	ID             int64           `db:"id"              json:"id"`
	SubscriptionID *int64          `db:"subscription_id" json:"subscription_id"`
	Scope          string          `db:"scope"           json:"scope"`
	DeliveryID     string          `db:"delivery_id"     json:"delivery_id"`
	Payload        json.RawMessage `db:"payload"         json:"payload"`
	Status         DeliveryStatus  `db:"status"          json:"status"`
	URL            string          `db:"url"             json:"url"`
	Topic          string          `db:"topic"           json:"topic"`
	Attempts       int             `db:"attempts"        json:"attempts"`
	LastError      *string         `db:"last_error"      json:"last_error,omitempty"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"      json:"updated_at"`
}
