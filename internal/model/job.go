package model

import (
	"encoding/json"
	"time"
)

// Job is one scheduled delivery attempt for a (subscription, payload) pair.
// Retries carry the same DeliveryID and, in chain ledger mode, the same RecordID.
type Job struct {
	DeliveryID       string          `json:"delivery_id"` // ULID, correlation id of the chain
	SubscriptionID   int64           `json:"subscription_id"`
	SubscriptionUUID string          `json:"subscription_uuid"`
	Topic            string          `json:"topic"`
	Payload          json.RawMessage `json:"payload"`
	Attempt          int             `json:"attempt"` // 1-based number of the attempt this job performs
	NextAttemptAt    time.Time       `json:"next_attempt_at"`
	RecordID         int64           `json:"record_id,omitempty"`
}

// Next returns the follow-up job for a retry at the given time.
func (j Job) Next(at time.Time) Job {
	n := j
	n.Attempt = j.Attempt + 1
	n.NextAttemptAt = at
	return n
}
