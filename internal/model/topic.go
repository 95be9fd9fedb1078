package model

import (
	"sort"
	"strings"
)

// Topic is an activity-log action kind a subscription can listen for.
type Topic string

func (t Topic) String() string { return string(t) }

// topicLabels is the host-defined enumeration of action kinds with their display names.
var topicLabels = map[Topic]string{
	"cfp.update":                  "The CfP has been modified.",
	"event.create":                "The event has been added.",
	"event.update":                "The event was modified.",
	"event.activate":              "The event was made public.",
	"event.deactivate":            "The event was deactivated.",
	"event.delete":                "The event was deleted.",
	"question.create":             "A question has been added.",
	"question.update":             "A question has been modified.",
	"question.delete":             "A question has been deleted.",
	"submission.create":           "The submission was created.",
	"submission.update":           "The submission was modified.",
	"submission.delete":           "The submission was deleted.",
	"submission.accept":           "The submission was accepted.",
	"submission.reject":           "The submission was rejected.",
	"submission.confirm":          "The submission was confirmed.",
	"submission.cancel":           "The submission was cancelled.",
	"submission.withdraw":         "The submission was withdrawn.",
	"submission.make_submitted":   "The submission was made 'submitted'.",
	"submission.speakers.add":     "A speaker was added to the submission.",
	"submission.speakers.remove":  "A speaker was removed from the submission.",
	"submission.comment.create":   "The submission was commented on.",
	"schedule.release":            "A new schedule version was released.",
	"review.create":               "The submission was reviewed.",
	"review.update":               "The submission review was modified.",
	"room.create":                 "A new room was added.",
	"room.update":                 "A room was modified.",
	"room.delete":                 "A room was deleted.",
	"speaker.arrived":             "A speaker has been marked as arrived.",
	"speaker.unarrived":           "A speaker has been marked as not arrived.",
	"user.profile.update":         "The profile was modified.",
	"mail.create":                 "An email was created.",
	"mail.sent":                   "An email was sent.",
	"invite.orga.send":            "An invitation to the organiser team was sent.",
	"invite.orga.accept":          "The invitation to the organiser team was accepted.",
	"event.invite.orga.send":      "An invitation to the organiser team was sent.",
	"submission_type.create":      "A session type has been added.",
	"submission_type.update":      "A session type has been modified.",
	"submission_type.delete":      "A session type has been deleted.",
	"submission.resources.add":    "A resource was added to the submission.",
	"submission.resources.remove": "A resource was removed from the submission.",
	"submission.unconfirm":        "The submission was unconfirmed.",
	"speaker_information.create":  "A speaker information note was added.",
	"speaker_information.update":  "A speaker information note was modified.",
	"speaker_information.delete":  "A speaker information note was deleted.",
	"track.create":                "A track has been added.",
	"track.update":                "A track has been modified.",
	"track.delete":                "A track has been deleted.",
}

// ParseTopic normalizes input. Returns (value, true) if the topic is part of the enumeration.
func ParseTopic(s string) (Topic, bool) {
	t := Topic(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

func (t Topic) Valid() bool {
	_, ok := topicLabels[t]
	return ok
}

// Label is the human-oriented description of the action, or the raw topic if unknown.
func (t Topic) Label() string {
	if l, ok := topicLabels[t]; ok {
		return l
	}
	return string(t)
}

// Topics returns the full enumeration sorted by name.
func Topics() []Topic {
	out := make([]Topic, 0, len(topicLabels))
	for t := range topicLabels {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
