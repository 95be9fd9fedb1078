package matcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu    sync.Mutex
	calls int
	refs  map[string][]model.SubscriberRef
	err   error
}

func (f *fakeStore) FindActiveByTopic(_ context.Context, scope string, topic model.Topic) ([]model.SubscriberRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.refs[scope+"/"+topic.String()], nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestFindSubscribersWithoutCache(t *testing.T) {
	store := &fakeStore{refs: map[string][]model.SubscriberRef{
		"democon/submission.create": {{ID: 1, UUID: "a"}, {ID: 2, UUID: "b"}},
	}}
	m := New(store)

	refs, err := m.FindSubscribers(context.Background(), "submission.create", "democon")
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	_, err = m.FindSubscribers(context.Background(), "submission.create", "democon")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
}

func TestFindSubscribersCachesUntilTTL(t *testing.T) {
	mr, rdb := newRedis(t)
	store := &fakeStore{refs: map[string][]model.SubscriberRef{
		"democon/submission.create": {{ID: 1, UUID: "a"}},
	}}
	m := New(store, WithCache(rdb, time.Minute))
	ctx := context.Background()

	refs, err := m.FindSubscribers(ctx, "submission.create", "democon")
	require.NoError(t, err)
	assert.Equal(t, []model.SubscriberRef{{ID: 1, UUID: "a"}}, refs)
	assert.True(t, mr.Exists("webhooks:match:democon:submission.create"))

	// a new subscriber is not visible while the entry is fresh
	store.refs["democon/submission.create"] = append(store.refs["democon/submission.create"], model.SubscriberRef{ID: 2, UUID: "b"})
	refs, err = m.FindSubscribers(ctx, "submission.create", "democon")
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Equal(t, 1, store.calls)

	mr.FastForward(61 * time.Second)
	refs, err = m.FindSubscribers(ctx, "submission.create", "democon")
	require.NoError(t, err)
	assert.Len(t, refs, 2)
	assert.Equal(t, 2, store.calls)
}

func TestEmptyResultIsCached(t *testing.T) {
	_, rdb := newRedis(t)
	store := &fakeStore{refs: map[string][]model.SubscriberRef{}}
	m := New(store, WithCache(rdb, time.Minute))

	for i := 0; i < 3; i++ {
		refs, err := m.FindSubscribers(context.Background(), "review.create", "democon")
		require.NoError(t, err)
		assert.Empty(t, refs)
	}
	assert.Equal(t, 1, store.calls)
}

func TestCacheIsPerScope(t *testing.T) {
	_, rdb := newRedis(t)
	store := &fakeStore{refs: map[string][]model.SubscriberRef{
		"a/event.update": {{ID: 1, UUID: "x"}},
		"b/event.update": {{ID: 2, UUID: "y"}},
	}}
	m := New(store, WithCache(rdb, time.Minute))

	ra, err := m.FindSubscribers(context.Background(), "event.update", "a")
	require.NoError(t, err)
	rb, err := m.FindSubscribers(context.Background(), "event.update", "b")
	require.NoError(t, err)
	assert.Equal(t, "x", ra[0].UUID)
	assert.Equal(t, "y", rb[0].UUID)
}

func TestCacheFailureFallsBackToStore(t *testing.T) {
	mr, rdb := newRedis(t)
	store := &fakeStore{refs: map[string][]model.SubscriberRef{
		"democon/event.update": {{ID: 7, UUID: "z"}},
	}}
	m := New(store, WithCache(rdb, time.Minute))
	mr.Close()

	refs, err := m.FindSubscribers(context.Background(), "event.update", "democon")
	require.NoError(t, err)
	assert.Equal(t, int64(7), refs[0].ID)
}

func TestStoreErrorPropagates(t *testing.T) {
	_, rdb := newRedis(t)
	boom := errors.New("db down")
	m := New(&fakeStore{err: boom}, WithCache(rdb, time.Minute))

	_, err := m.FindSubscribers(context.Background(), "event.update", "democon")
	assert.ErrorIs(t, err, boom)
}

func TestInvalidate(t *testing.T) {
	mr, rdb := newRedis(t)
	store := &fakeStore{refs: map[string][]model.SubscriberRef{}}
	m := New(store, WithCache(rdb, time.Minute))
	ctx := context.Background()

	_, err := m.FindSubscribers(ctx, "event.update", "democon")
	require.NoError(t, err)
	require.True(t, mr.Exists("webhooks:match:democon:event.update"))

	require.NoError(t, m.Invalidate(ctx, "democon", "event.update"))
	assert.False(t, mr.Exists("webhooks:match:democon:event.update"))

	assert.NoError(t, New(store).Invalidate(ctx, "democon", "event.update"))
}
