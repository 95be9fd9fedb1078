package worker

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/redis/go-redis/v9"
)

// Queue holds scheduled jobs ordered by NextAttemptAt. A popped job belongs
// to the caller alone; it is never handed out twice.
type Queue interface {
	Push(ctx context.Context, job model.Job) error
	PopDue(ctx context.Context, now time.Time, limit int) ([]model.Job, error)
	Len(ctx context.Context) (int64, error)
}

// ---- in-process ----

type entry struct {
	job model.Job
	seq uint64 // FIFO among equal due times
}

type jobHeap []entry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	a, b := h[i].job.NextAttemptAt, h[j].job.NextAttemptAt
	if a.Equal(b) {
		return h[i].seq < h[j].seq
	}
	return a.Before(b)
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old) - 1
	e := old[n]
	*h = old[:n]
	return e
}

// MemoryQueue keeps jobs in process. Jobs are lost on restart.
type MemoryQueue struct {
	mu  sync.Mutex
	h   jobHeap
	seq uint64
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Push(_ context.Context, job model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.h, entry{job: job, seq: q.seq})
	return nil
}

func (q *MemoryQueue) PopDue(_ context.Context, now time.Time, limit int) ([]model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []model.Job
	for q.h.Len() > 0 && (limit <= 0 || len(out) < limit) {
		if q.h[0].job.NextAttemptAt.After(now) {
			break
		}
		out = append(out, heap.Pop(&q.h).(entry).job)
	}
	return out, nil
}

func (q *MemoryQueue) Len(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.h.Len()), nil
}

// ---- redis ----

// RedisQueue stores jobs in a sorted set scored by NextAttemptAt in unix
// milliseconds. Scheduled retries survive restarts and can be shared by
// several worker processes; ZREM decides which process owns a job.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "webhooks:queue"
	}
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Push(ctx context.Context, job model.Job) error {
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(job.NextAttemptAt.UnixMilli()),
		Member: member,
	}).Err()
}

func (q *RedisQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	members, err := q.rdb.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.Job, 0, len(members))
	for _, m := range members {
		n, err := q.rdb.ZRem(ctx, q.key, m).Result()
		if err != nil {
			return out, err
		}
		if n == 0 {
			// claimed by another process
			continue
		}
		var job model.Job
		if err := json.Unmarshal([]byte(m), &job); err != nil {
			// unreadable member, already removed
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.key).Result()
}
