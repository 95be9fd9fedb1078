package model

import (
	"encoding/json"
	"time"
)

// Actor is the user behind an activity-log entry. Payloads reference it by Code.
type Actor struct {
	Code string `db:"actor_code" json:"code"`
	Name string `db:"actor_name" json:"name"`
}

// ActivityLog is the host application's activity-log entry (activity_log table).
type ActivityLog struct {
	ID           int64           `db:"id"             json:"id"`
	Scope        string          `db:"scope"          json:"scope"`        // event slug
	ActionType   string          `db:"action_type"    json:"action_type"`  // topic
	ContentType  string          `db:"content_type"   json:"content_type"` // e.g. "submission"
	ObjectID     string          `db:"object_id"      json:"object_id"`
	Actor        *Actor          `db:"-"              json:"actor,omitempty"`
	IsOrgaAction bool            `db:"is_orga_action" json:"is_orga_action"`
	Data         json.RawMessage `db:"data"           json:"data,omitempty"`
	Timestamp    time.Time       `db:"timestamp"      json:"timestamp"`
}

// Topic returns the entry's action type as a topic.
func (a ActivityLog) Topic() Topic {
	return Topic(a.ActionType)
}
