package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct {
	mu      sync.Mutex
	seen    []model.Job
	retries int // follow-ups to emit per chain
}

func (p *recordingProcessor) Process(_ context.Context, job model.Job) (*model.Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, job)
	if job.Attempt <= p.retries {
		next := job.Next(job.NextAttemptAt.Add(time.Minute))
		return &next, nil
	}
	return nil, nil
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

// fakeClock is read by the scheduler's poller and advanced by tests.
type fakeClock struct{ ns atomic.Int64 }

func (c *fakeClock) Now() time.Time          { return time.Unix(0, c.ns.Load()).UTC() }
func (c *fakeClock) Advance(d time.Duration) { c.ns.Add(int64(d)) }

func newClock() *fakeClock {
	c := &fakeClock{}
	c.ns.Store(clock.UnixNano())
	return c
}

func TestSchedulerRunsDueJobsAndRetries(t *testing.T) {
	clk := newClock()
	q := NewMemoryQueue()
	proc := &recordingProcessor{retries: 1}

	s := NewScheduler(q, proc, nil)
	s.Workers = 4
	s.PollInterval = 5 * time.Millisecond
	s.Now = clk.Now

	ctx := context.Background()
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, s.Submit(ctx, model.Job{DeliveryID: "d", SubscriptionID: id, Attempt: 1}))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		_ = s.Run(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool { return proc.count() == 3 }, time.Second, 5*time.Millisecond)

	// retries are not due yet
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 3, proc.count())
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return proc.count() == 6 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	proc.mu.Lock()
	defer proc.mu.Unlock()
	perSub := map[int64][]int{}
	for _, j := range proc.seen {
		perSub[j.SubscriptionID] = append(perSub[j.SubscriptionID], j.Attempt)
	}
	for _, id := range []int64{1, 2, 3} {
		assert.Equal(t, []int{1, 2}, perSub[id])
	}
}

func TestSubmitDefaultsToNow(t *testing.T) {
	clk := newClock()
	q := NewMemoryQueue()
	s := NewScheduler(q, &recordingProcessor{}, nil)
	s.Now = clk.Now

	require.NoError(t, s.Submit(context.Background(), model.Job{DeliveryID: "x", Attempt: 1}))
	due, err := q.PopDue(context.Background(), clk.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, clk.Now().Equal(due[0].NextAttemptAt))
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	s := NewScheduler(NewMemoryQueue(), &recordingProcessor{}, nil)
	s.PollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
