package payload

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
)

var ErrInvalidEntry = errors.New("payload: entry has no scope or action type")

// Activity is the human-oriented rendering of an entry.
type Activity struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Actor       string    `json:"actor"`
	Timestamp   time.Time `json:"timestamp"`
	URL         string    `json:"url"`
}

// Document is one event's payload. It is built once per event and annotated
// per delivery with ForSubscription.
type Document struct {
	Topic       string
	ObjectType  string
	WebhookUUID string
	Object      map[string]any
	Activity    Activity
}

// ForSubscription returns a copy of d addressed to one subscription.
func (d Document) ForSubscription(uuid string) Document {
	d.WebhookUUID = uuid
	return d
}

// Builder turns activity-log entries into documents.
type Builder struct {
	baseURL string
}

func NewBuilder(baseURL string) *Builder {
	return &Builder{baseURL: strings.TrimRight(baseURL, "/")}
}

// Build flattens entry into a field map. The actor reference resolves to its
// code, not a nested object.
func (b *Builder) Build(entry model.ActivityLog) (Document, error) {
	if entry.Scope == "" || entry.ActionType == "" {
		return Document{}, ErrInvalidEntry
	}

	var actorCode, actorName any
	actor := ""
	if entry.Actor != nil {
		actorCode = entry.Actor.Code
		actorName = entry.Actor.Name
		actor = entry.Actor.Name
		if actor == "" {
			actor = entry.Actor.Code
		}
	}

	object := map[string]any{
		"id":             entry.ID,
		"scope":          entry.Scope,
		"action_type":    entry.ActionType,
		"content_type":   entry.ContentType,
		"object_id":      entry.ObjectID,
		"actor":          actorCode,
		"actor_name":     actorName,
		"is_orga_action": entry.IsOrgaAction,
		"timestamp":      entry.Timestamp,
		"data":           nil,
	}
	if len(entry.Data) > 0 {
		object["data"] = entry.Data
	}

	return Document{
		Topic:      entry.ActionType,
		ObjectType: entry.ContentType,
		Object:     object,
		Activity: Activity{
			Title:       entry.Topic().Label(),
			Description: describe(entry),
			Actor:       actor,
			Timestamp:   entry.Timestamp,
			URL:         b.objectURL(entry),
		},
	}, nil
}

func describe(e model.ActivityLog) string {
	switch {
	case e.ContentType != "" && e.ObjectID != "":
		return fmt.Sprintf("%s %s in %s", e.ContentType, e.ObjectID, e.Scope)
	case e.ContentType != "":
		return fmt.Sprintf("%s in %s", e.ContentType, e.Scope)
	default:
		return e.Scope
	}
}

// objectURL points at the organiser page of the affected object, falling back
// to the event page when the entry has no object.
func (b *Builder) objectURL(e model.ActivityLog) string {
	p := "/orga/event/" + url.PathEscape(e.Scope) + "/"
	if e.ContentType != "" && e.ObjectID != "" {
		p += url.PathEscape(e.ContentType) + "s/" + url.PathEscape(e.ObjectID) + "/"
	}
	return b.baseURL + p
}
