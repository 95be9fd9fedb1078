package matcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/activitylog-webhook/internal/metrics"
	"github.com/jmehdipour/activitylog-webhook/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the part of the subscription store the matcher reads.
type Store interface {
	FindActiveByTopic(ctx context.Context, scope string, topic model.Topic) ([]model.SubscriberRef, error)
}

// Matcher resolves the active subscriptions of a scope listening for a topic.
//
// With a cache attached, results (including empty ones) are kept in Redis for
// TTL. A subscription (de)activated inside that window may be missed or
// wrongly matched until the entry expires.
type Matcher struct {
	store  Store
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type Option func(*Matcher)

// WithCache enables result caching. A nil client or non-positive ttl keeps it off.
func WithCache(rdb *redis.Client, ttl time.Duration) Option {
	return func(m *Matcher) {
		if rdb != nil && ttl > 0 {
			m.cache, m.ttl = rdb, ttl
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Matcher) {
		if l != nil {
			m.logger = l
		}
	}
}

func New(store Store, opts ...Option) *Matcher {
	m := &Matcher{store: store, logger: zap.NewNop()}
	for _, o := range opts {
		o(m)
	}
	return m
}

func cacheKey(scope string, topic model.Topic) string {
	return fmt.Sprintf("webhooks:match:%s:%s", scope, topic)
}

// FindSubscribers returns (id, uuid) pairs in no particular order.
func (m *Matcher) FindSubscribers(ctx context.Context, topic model.Topic, scope string) ([]model.SubscriberRef, error) {
	if m.cache == nil {
		return m.store.FindActiveByTopic(ctx, scope, topic)
	}

	key := cacheKey(scope, topic)
	data, err := m.cache.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var refs []model.SubscriberRef
		if uErr := json.Unmarshal(data, &refs); uErr == nil {
			metrics.MatchCacheTotal.WithLabelValues("hit").Inc()
			return refs, nil
		}
		m.logger.Warn("matcher: corrupt cache entry", zap.String("key", key))
		metrics.MatchCacheTotal.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.MatchCacheTotal.WithLabelValues("miss").Inc()
	default:
		m.logger.Warn("matcher: cache read failed", zap.String("key", key), zap.Error(err))
		metrics.MatchCacheTotal.WithLabelValues("error").Inc()
	}

	refs, err := m.store.FindActiveByTopic(ctx, scope, topic)
	if err != nil {
		return nil, err
	}
	if refs == nil {
		refs = []model.SubscriberRef{}
	}
	if payload, err := json.Marshal(refs); err == nil {
		if err := m.cache.Set(ctx, key, payload, m.ttl).Err(); err != nil {
			m.logger.Warn("matcher: cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return refs, nil
}

// Invalidate drops cached results for the given topics of scope. The admin
// API calls it after subscription writes so changes show up before TTL expiry.
func (m *Matcher) Invalidate(ctx context.Context, scope string, topics ...model.Topic) error {
	if m.cache == nil || len(topics) == 0 {
		return nil
	}
	keys := make([]string, len(topics))
	for i, t := range topics {
		keys[i] = cacheKey(scope, t)
	}
	return m.cache.Del(ctx, keys...).Err()
}
