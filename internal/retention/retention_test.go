package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"github.com/jmehdipour/activitylog-webhook/internal/repository/repotest"
	"github.com/jmehdipour/activitylog-webhook/internal/worker"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)

func TestPurgeOnceRespectsWindow(t *testing.T) {
	db := repotest.NewSQLite(t)
	repo := repository.NewDeliveriesRepository(db)
	ctx := context.Background()

	old := &model.DeliveryRecord{DeliveryID: "old", Payload: []byte(`{}`), CreatedAt: now.AddDate(0, 0, -31)}
	kept := &model.DeliveryRecord{DeliveryID: "kept", Payload: []byte(`{}`), CreatedAt: now.AddDate(0, 0, -29)}
	require.NoError(t, repo.InsertPending(ctx, old))
	require.NoError(t, repo.InsertPending(ctx, kept))

	p := NewPurger(repo, 30, nil)
	p.Now = func() time.Time { return now }

	before := testutil.ToFloat64(metrics.LedgerPurgedTotal)
	n, err := p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.LedgerPurgedTotal))

	_, err = repo.Get(ctx, old.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	got, err := repo.Get(ctx, kept.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.DeliveryID)

	// nothing stale left
	n, err = p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = repo.Get(ctx, kept.ID)
	assert.NoError(t, err)
}

func TestPurgeOnceRejectsBadWindow(t *testing.T) {
	_, err := NewPurger(&flakyStore{}, 0, nil).PurgeOnce(context.Background())
	assert.Error(t, err)
}

type flakyStore struct {
	failures int32
	calls    atomic.Int32
}

func (s *flakyStore) PurgeOlderThan(context.Context, time.Time) (int64, error) {
	if s.calls.Add(1) <= s.failures {
		return 0, errors.New("lock wait timeout")
	}
	return 4, nil
}

func fastPurger(store Store) *Purger {
	p := NewPurger(store, 30, nil)
	p.Backoff = worker.Policy{Initial: time.Millisecond, Max: 2 * time.Millisecond, MaxAttempts: 4}
	return p
}

func TestPurgeWithRetryRecovers(t *testing.T) {
	store := &flakyStore{failures: 2}
	n, err := fastPurger(store).PurgeWithRetry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, int32(3), store.calls.Load())
}

func TestPurgeWithRetryIsBounded(t *testing.T) {
	store := &flakyStore{failures: 100}
	_, err := fastPurger(store).PurgeWithRetry(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(4), store.calls.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &flakyStore{}
	p := fastPurger(store)
	p.Interval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return store.calls.Load() >= 1 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
