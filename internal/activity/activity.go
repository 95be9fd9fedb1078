package activity

import (
	"context"
	"fmt"
	"sync"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/jmehdipour/activitylog-webhook/internal/repository"
	"go.uber.org/zap"
)

// Listener observes activity-log writes. It runs on the writer's call path
// and must not block on network I/O.
type Listener interface {
	OnActivity(ctx context.Context, entry model.ActivityLog, created bool)
}

type ListenerFunc func(ctx context.Context, entry model.ActivityLog, created bool)

func (f ListenerFunc) OnActivity(ctx context.Context, entry model.ActivityLog, created bool) {
	f(ctx, entry, created)
}

// Log is the host activity log: it stores entries and tells every registered
// listener about each write, synchronously and in registration order.
type Log struct {
	repo   repository.ActivityRepository
	logger *zap.Logger

	mu        sync.RWMutex
	listeners []Listener
}

func NewLog(repo repository.ActivityRepository, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{repo: repo, logger: logger}
}

func (l *Log) Subscribe(li Listener) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.listeners = append(l.listeners, li)
}

// Record persists a new entry and notifies listeners with created=true.
func (l *Log) Record(ctx context.Context, entry *model.ActivityLog) error {
	if l.repo != nil {
		if err := l.repo.Insert(ctx, nil, entry); err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
	}
	l.Notify(ctx, *entry, true)
	return nil
}

// Notify runs every listener for entry. A panicking listener is logged and
// does not stop the others.
func (l *Log) Notify(ctx context.Context, entry model.ActivityLog, created bool) {
	l.mu.RLock()
	listeners := append([]Listener(nil), l.listeners...)
	l.mu.RUnlock()

	for _, li := range listeners {
		l.safeCall(ctx, li, entry, created)
	}
}

func (l *Log) safeCall(ctx context.Context, li Listener, entry model.ActivityLog, created bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("activity: listener panicked",
				zap.Int64("entry_id", entry.ID),
				zap.String("action_type", entry.ActionType),
				zap.Any("panic", r),
			)
		}
	}()
	li.OnActivity(ctx, entry, created)
}
