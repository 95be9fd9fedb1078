package model

import "time"

// Subscription is a registered webhook endpoint persisted in the subscriptions table.
type Subscription struct {
	ID        int64     `db:"id"          json:"-"`
	UUID      string    `db:"uuid"        json:"uuid"`  // public id, stable across export/import
	Scope     string    `db:"scope"       json:"scope"` // owning tenant (event slug)
	URL       string    `db:"url"         json:"url"`
	Active    bool      `db:"active"      json:"active"`
	Topics    []Topic   `db:"-"           json:"topics"`
	CreatedAt time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt time.Time `db:"updated_at"  json:"updated_at"`
}

// HasTopic reports whether t is part of the subscription's topic set.
func (s Subscription) HasTopic(t Topic) bool {
	for _, x := range s.Topics {
		if x == t {
			return true
		}
	}
	return false
}

// SubscriberRef is what the topic matcher hands to the fan-out handler.
type SubscriberRef struct {
	ID   int64  `db:"id"   json:"id"`
	UUID string `db:"uuid" json:"uuid"`
}
