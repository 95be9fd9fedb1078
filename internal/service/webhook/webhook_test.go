package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/activity"
	"github.com/jmehdipour/activitylog-webhook/internal/dispatcher"
	"github.com/jmehdipour/activitylog-webhook/internal/matcher"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/payload"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"github.com/jmehdipour/activitylog-webhook/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a subscription store holding full subscriptions; it answers
// both the matcher and the deliverer.
type memStore struct {
	subs    []model.Subscription
	secrets map[int64]*model.Secret
}

func (m *memStore) FindActiveByTopic(_ context.Context, scope string, topic model.Topic) ([]model.SubscriberRef, error) {
	var out []model.SubscriberRef
	for _, s := range m.subs {
		if s.Active && s.Scope == scope && s.HasTopic(topic) {
			out = append(out, model.SubscriberRef{ID: s.ID, UUID: s.UUID})
		}
	}
	return out, nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*model.Subscription, error) {
	for _, s := range m.subs {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memStore) Latest(_ context.Context, id int64) (*model.Secret, error) {
	return m.secrets[id], nil
}

type captureSubmitter struct {
	mu   sync.Mutex
	jobs []model.Job
	err  error
}

func (c *captureSubmitter) Submit(_ context.Context, j model.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.jobs = append(c.jobs, j)
	return nil
}

func entry(topic string) model.ActivityLog {
	return model.ActivityLog{
		ID:          9,
		Scope:       "democon",
		ActionType:  topic,
		ContentType: "submission",
		ObjectID:    "ABCDE",
		Timestamp:   time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}
}

func newHandler(t *testing.T, store *memStore, sub Submitter) *Handler {
	t.Helper()
	enc, err := payload.NewEncoder("json")
	require.NoError(t, err)
	h := NewHandler(matcher.New(store), payload.NewBuilder("https://cfp.example.org"), enc, sub, nil)
	h.Now = func() time.Time { return time.Date(2026, 10, 16, 9, 0, 1, 0, time.UTC) }
	return h
}

func TestHandleOneJobPerMatchingSubscription(t *testing.T) {
	store := &memStore{subs: []model.Subscription{
		{ID: 1, UUID: "u1", Scope: "democon", Active: true, Topics: []model.Topic{"submission.create", "submission.update"}},
		{ID: 2, UUID: "u2", Scope: "democon", Active: true, Topics: []model.Topic{"submission.create"}},
		{ID: 3, UUID: "u3", Scope: "democon", Active: false, Topics: []model.Topic{"submission.create"}},
		{ID: 4, UUID: "u4", Scope: "othercon", Active: true, Topics: []model.Topic{"submission.create"}},
		{ID: 5, UUID: "u5", Scope: "democon", Active: true, Topics: []model.Topic{"event.update"}},
	}}
	sub := &captureSubmitter{}
	h := newHandler(t, store, sub)

	n, err := h.Handle(context.Background(), entry("submission.create"), true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, sub.jobs, 2)
	ids := map[int64]bool{}
	for _, j := range sub.jobs {
		ids[j.SubscriptionID] = true
		assert.Equal(t, 1, j.Attempt)
		assert.Equal(t, "submission.create", j.Topic)
		assert.NotEmpty(t, j.DeliveryID)

		var body map[string]any
		require.NoError(t, json.Unmarshal(j.Payload, &body))
		assert.Equal(t, j.SubscriptionUUID, body["webhook_uuid"])
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true}, ids)
	assert.NotEqual(t, sub.jobs[0].DeliveryID, sub.jobs[1].DeliveryID)
}

func TestHandleIgnoresUpdates(t *testing.T) {
	store := &memStore{subs: []model.Subscription{
		{ID: 1, UUID: "u1", Scope: "democon", Active: true, Topics: []model.Topic{"submission.create"}},
	}}
	sub := &captureSubmitter{}

	n, err := newHandler(t, store, sub).Handle(context.Background(), entry("submission.create"), false)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, sub.jobs)
}

func TestHandleNoSubscribers(t *testing.T) {
	sub := &captureSubmitter{}
	n, err := newHandler(t, &memStore{}, sub).Handle(context.Background(), entry("review.create"), true)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestHandleSubmitErrorsAreJoined(t *testing.T) {
	store := &memStore{subs: []model.Subscription{
		{ID: 1, UUID: "u1", Scope: "democon", Active: true, Topics: []model.Topic{"submission.create"}},
	}}
	boom := errors.New("queue down")
	n, err := newHandler(t, store, &captureSubmitter{err: boom}).Handle(context.Background(), entry("submission.create"), true)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, boom)
}

func TestHandlePayloadIsDeterministicPerSubscription(t *testing.T) {
	store := &memStore{subs: []model.Subscription{
		{ID: 1, UUID: "u1", Scope: "democon", Active: true, Topics: []model.Topic{"submission.create"}},
	}}
	sub := &captureSubmitter{}
	h := newHandler(t, store, sub)

	for i := 0; i < 2; i++ {
		_, err := h.Handle(context.Background(), entry("submission.create"), true)
		require.NoError(t, err)
	}
	require.Len(t, sub.jobs, 2)
	assert.Equal(t, sub.jobs[0].Payload, sub.jobs[1].Payload)
}

// An activity write reaches the receiver through the observer, the queue and
// the deliverer.
func TestActivityToReceiver(t *testing.T) {
	var (
		mu    sync.Mutex
		posts []*http.Request
		body  []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		posts = append(posts, r)
		body, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	store := &memStore{
		subs: []model.Subscription{{
			ID: 1, UUID: "3f0c2a4e-5b6d-4e7f-8a9b-0c1d2e3f4a5b", Scope: "democon", URL: srv.URL + "/hook", Active: true,
			Topics: []model.Topic{"submission.create", "submission.update"},
		}},
		secrets: map[int64]*model.Secret{1: {ID: 1, Token: "0123456789abcdef"}},
	}

	queue := worker.NewMemoryQueue()
	sched := worker.NewScheduler(queue, nil, nil)
	h := newHandler(t, store, sched)

	log := activity.NewLog(nil, nil)
	log.Subscribe(h)
	e := entry("submission.create")
	require.NoError(t, log.Record(context.Background(), &e))

	due, err := queue.PopDue(context.Background(), h.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	d := &worker.Deliverer{
		Subscriptions: store,
		Secrets:       store,
		Sender:        dispatcher.NewDispatcher(time.Second, "", nil),
		Policy:        worker.DefaultPolicy(),
	}
	next, err := d.Process(context.Background(), due[0])
	require.NoError(t, err)
	assert.Nil(t, next)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, posts, 1)
	assert.Equal(t, "/hook", posts[0].URL.Path)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "submission.create", got["topic"])
	assert.Equal(t, "3f0c2a4e-5b6d-4e7f-8a9b-0c1d2e3f4a5b", got["webhook_uuid"])
	assert.True(t, dispatcher.Verify("0123456789abcdef", body, posts[0].Header.Get(dispatcher.HeaderSignature)))
}
