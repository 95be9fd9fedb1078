package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/kafka"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"go.uber.org/zap"
)

// MessageSource is the part of the Kafka consumer the ingest worker uses.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// Recorder persists an activity-log entry and notifies its observers.
type Recorder interface {
	Record(ctx context.Context, entry *model.ActivityLog) error
}

// Ingest:
// - fetches activity-log entries published by the host from Kafka,
// - records each one, which fires the webhook observer,
// - commits the offset once the entry is stored.
//
// Messages of one partition go to the same processor and are handled in
// order, so an offset is only committed after every earlier one of its
// partition. A failing Record is retried per RecordRetry; when the budget is
// spent Run stops and returns the error, leaving the offset uncommitted for
// the next consumer.
type Ingest struct {
	Source      MessageSource
	Recorder    Recorder
	Workers     int
	RecordRetry Policy
	Logger      *zap.Logger
}

func NewIngest(src MessageSource, rec Recorder, logger *zap.Logger) *Ingest {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingest{
		Source:      src,
		Recorder:    rec,
		Workers:     8,
		RecordRetry: Policy{Initial: 200 * time.Millisecond, Max: 10 * time.Second, MaxAttempts: 8},
		Logger:      logger,
	}
}

// Run starts the worker and blocks until ctx is cancelled or an entry
// cannot be recorded.
func (w *Ingest) Run(parent context.Context) error {
	if w.Source == nil || w.Recorder == nil {
		return errors.New("ingest: source and recorder are required")
	}
	if w.Workers <= 0 {
		w.Workers = 8
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var (
		fatalOnce sync.Once
		fatal     error
	)
	fail := func(err error) {
		fatalOnce.Do(func() {
			fatal = err
			cancel()
		})
	}

	lanes := make([]chan kafka.Message, w.Workers)
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 2)
	}

	// fetch loop → one lane per partition bucket
	go func() {
		defer func() {
			for _, l := range lanes {
				close(l)
			}
		}()
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Logger.Warn("ingest: kafka fetch failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
				continue
			}
			lane := lanes[laneFor(m.Partition, len(lanes))]
			select {
			case lane <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for _, l := range lanes {
		wg.Add(1)
		go func(in <-chan kafka.Message) {
			defer wg.Done()
			for m := range in {
				if ctx.Err() != nil {
					// drain without committing
					continue
				}
				if err := w.processOne(ctx, m); err != nil {
					fail(err)
				}
			}
		}(l)
	}

	wg.Wait()
	return fatal
}

func laneFor(partition, n int) int {
	if partition < 0 {
		partition = -partition
	}
	return partition % n
}

// processOne records m and commits it. It returns an error only when the
// entry could not be recorded within the retry budget.
func (w *Ingest) processOne(ctx context.Context, m kafka.Message) error {
	var entry model.ActivityLog
	if err := json.Unmarshal(m.Value, &entry); err != nil || entry.Scope == "" || entry.ActionType == "" {
		// poison → commit, skip
		if err != nil {
			w.Logger.Warn("ingest: bad entry json", zap.Int64("offset", m.Offset), zap.Error(err))
		} else {
			w.Logger.Warn("ingest: entry missing scope or action_type", zap.Int64("offset", m.Offset))
		}
		w.commit(ctx, m)
		return nil
	}

	for attempt := 1; ; attempt++ {
		entry.ID = 0
		err := w.Recorder.Record(ctx, &entry)
		if err == nil {
			w.commit(ctx, m)
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if w.RecordRetry.Exhausted(attempt) {
			w.Logger.Error("ingest: record failed, stopping",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return fmt.Errorf("ingest: record partition %d offset %d: %w", m.Partition, m.Offset, err)
		}

		delay := w.RecordRetry.Delay(attempt)
		w.Logger.Warn("ingest: record failed, retrying",
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// commit runs even during shutdown once the entry is recorded.
func (w *Ingest) commit(ctx context.Context, m kafka.Message) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.Source.Commit(cctx, m); err != nil {
		w.Logger.Warn("ingest: commit failed", zap.Error(err))
	}
}
