package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	err    error
	nextID int64
}

func (r *fakeRepo) Insert(_ context.Context, _ *sqlx.Tx, e *model.ActivityLog) error {
	if r.err != nil {
		return r.err
	}
	r.nextID++
	e.ID = r.nextID
	return nil
}

func TestRecordNotifiesInOrder(t *testing.T) {
	log := NewLog(&fakeRepo{}, nil)

	var calls []string
	log.Subscribe(ListenerFunc(func(_ context.Context, e model.ActivityLog, created bool) {
		assert.True(t, created)
		assert.Equal(t, int64(1), e.ID)
		calls = append(calls, "first")
	}))
	log.Subscribe(ListenerFunc(func(context.Context, model.ActivityLog, bool) {
		calls = append(calls, "second")
	}))

	entry := &model.ActivityLog{Scope: "democon", ActionType: "submission.create"}
	require.NoError(t, log.Record(context.Background(), entry))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestRecordStoreFailureSkipsListeners(t *testing.T) {
	boom := errors.New("insert failed")
	log := NewLog(&fakeRepo{err: boom}, nil)

	called := false
	log.Subscribe(ListenerFunc(func(context.Context, model.ActivityLog, bool) { called = true }))

	err := log.Record(context.Background(), &model.ActivityLog{Scope: "democon", ActionType: "event.update"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestNotifyRecoversPanics(t *testing.T) {
	log := NewLog(nil, nil)

	var created []bool
	log.Subscribe(ListenerFunc(func(context.Context, model.ActivityLog, bool) { panic("boom") }))
	log.Subscribe(ListenerFunc(func(_ context.Context, _ model.ActivityLog, c bool) { created = append(created, c) }))

	assert.NotPanics(t, func() {
		log.Notify(context.Background(), model.ActivityLog{ActionType: "event.update"}, false)
	})
	assert.Equal(t, []bool{false}, created)
}
