package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"go.uber.org/zap"
)

// Processor runs one job and returns its follow-up, if any.
type Processor interface {
	Process(ctx context.Context, job model.Job) (*model.Job, error)
}

// Scheduler:
// - polls the queue for due jobs,
// - fans them out to a pool of processors,
// - pushes follow-up jobs back with their backoff deadline.
//
// A waiting retry is just a queue entry; no goroutine sleeps on it.
type Scheduler struct {
	Queue        Queue
	Processor    Processor
	Workers      int
	PollInterval time.Duration
	BatchSize    int
	Now          func() time.Time
	Logger       *zap.Logger
}

func NewScheduler(q Queue, p Processor, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		Queue:        q,
		Processor:    p,
		Workers:      16,
		PollInterval: 500 * time.Millisecond,
		BatchSize:    100,
		Logger:       logger,
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Submit schedules a job. Jobs with a zero NextAttemptAt are due immediately.
func (s *Scheduler) Submit(ctx context.Context, job model.Job) error {
	if job.NextAttemptAt.IsZero() {
		job.NextAttemptAt = s.now()
	}
	return s.Queue.Push(ctx, job)
}

// Run starts the pool and blocks until ctx is cancelled. Jobs already handed
// to a processor run to completion; polled jobs not yet started go back to
// the queue.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Workers <= 0 {
		s.Workers = 16
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 500 * time.Millisecond
	}
	if s.BatchSize <= 0 {
		s.BatchSize = 100
	}

	jobs := make(chan model.Job)

	var wg sync.WaitGroup
	for i := 0; i < s.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runProcessor(ctx, jobs)
		}()
	}

	s.runPoller(ctx, jobs)
	close(jobs)
	wg.Wait()
	return nil
}

func (s *Scheduler) runPoller(ctx context.Context, out chan<- model.Job) {
	tick := time.NewTicker(s.PollInterval)
	defer tick.Stop()

	for {
		batch, err := s.Queue.PopDue(ctx, s.now(), s.BatchSize)
		if err != nil && ctx.Err() == nil {
			s.Logger.Error("scheduler: poll failed", zap.Error(err))
		}

		for i, job := range batch {
			select {
			case out <- job:
			case <-ctx.Done():
				s.requeue(batch[i:])
				return
			}
		}

		if n, err := s.Queue.Len(ctx); err == nil {
			metrics.QueueDepth.Set(float64(n))
		}

		// a full batch means more may be due right away
		if len(batch) == s.BatchSize {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func (s *Scheduler) runProcessor(ctx context.Context, in <-chan model.Job) {
	// an attempt that has started finishes even during shutdown
	jctx := context.WithoutCancel(ctx)

	for job := range in {
		next, err := s.Processor.Process(jctx, job)
		if err != nil {
			s.Logger.Debug("scheduler: attempt failed",
				zap.String("delivery_id", job.DeliveryID),
				zap.Int("attempt", job.Attempt),
				zap.Error(err),
			)
		}
		if next == nil {
			continue
		}
		if err := s.Queue.Push(jctx, *next); err != nil {
			s.Logger.Error("scheduler: could not schedule retry, chain dropped",
				zap.String("delivery_id", next.DeliveryID),
				zap.Int("attempt", next.Attempt),
				zap.Error(err),
			)
		}
	}
}

func (s *Scheduler) requeue(jobs []model.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, j := range jobs {
		if err := s.Queue.Push(ctx, j); err != nil {
			s.Logger.Error("scheduler: requeue on shutdown failed",
				zap.String("delivery_id", j.DeliveryID), zap.Error(err))
		}
	}
}
