package model

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTopic(t *testing.T) {
	tp, ok := ParseTopic("  Submission.Create ")
	assert.True(t, ok)
	assert.Equal(t, Topic("submission.create"), tp)

	_, ok = ParseTopic("submission.explode")
	assert.False(t, ok)

	assert.Equal(t, "unknown.topic", Topic("unknown.topic").Label())
	assert.NotEqual(t, "submission.create", Topic("submission.create").Label())
}

func TestTopicsSorted(t *testing.T) {
	all := Topics()
	assert.NotEmpty(t, all)
	assert.True(t, sort.SliceIsSorted(all, func(i, j int) bool { return all[i] < all[j] }))
	for _, tp := range all {
		assert.True(t, tp.Valid(), tp)
	}
}

func TestSecretMasked(t *testing.T) {
	assert.Equal(t, "********cdef", Secret{Token: "0123456bcdef"}.Masked())
	assert.Equal(t, "***", Secret{Token: "abc"}.Masked())
	assert.Equal(t, "**äöüß", Secret{Token: "xyäöüß"}.Masked())
	assert.ErrorIs(t, ValidateSecretToken("  short  "), ErrSecretTooShort)
	assert.NoError(t, ValidateSecretToken("long-enough-token"))

	// six two-byte runes are twelve bytes but only six characters
	assert.ErrorIs(t, ValidateSecretToken("ääääää"), ErrSecretTooShort)
	assert.NoError(t, ValidateSecretToken("ääääääääääää"))
}

func TestJobNext(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	j := Job{DeliveryID: "01H", SubscriptionID: 7, Attempt: 2, RecordID: 9}
	n := j.Next(at)

	assert.Equal(t, 3, n.Attempt)
	assert.Equal(t, at, n.NextAttemptAt)
	assert.Equal(t, "01H", n.DeliveryID)
	assert.Equal(t, int64(9), n.RecordID)
	assert.Equal(t, 2, j.Attempt)
}

func TestDeliveryStatus(t *testing.T) {
	assert.True(t, DeliveryPending.Valid())
	assert.False(t, DeliveryStatus("lost").Valid())
	assert.False(t, DeliveryPending.Terminal())
	assert.True(t, DeliverySuccess.Terminal())
	assert.True(t, DeliveryFailure.Terminal())
}

func TestSubscriptionHasTopic(t *testing.T) {
	s := Subscription{Topics: []Topic{"event.update"}}
	assert.True(t, s.HasTopic("event.update"))
	assert.False(t, s.HasTopic("submission.create"))
}
