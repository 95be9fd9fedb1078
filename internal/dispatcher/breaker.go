package dispatcher

import (
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Breakers keeps one circuit breaker per subscription endpoint so a dead
// endpoint fails fast instead of tying up workers until the client timeout.
// Subscriptions sharing a host never trip each other.
type Breakers struct {
	mu            sync.Mutex
	byKey         map[string]*gobreaker.CircuitBreaker[int]
	failThreshold uint32
	openFor       time.Duration
	logger        *zap.Logger
}

func NewBreakers(failThreshold int, openFor time.Duration, logger *zap.Logger) *Breakers {
	if failThreshold <= 0 {
		failThreshold = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breakers{
		byKey:         make(map[string]*gobreaker.CircuitBreaker[int]),
		failThreshold: uint32(failThreshold),
		openFor:       openFor,
		logger:        logger,
	}
}

// Key identifies the breaker of one subscription and target URL. A URL
// change starts from a closed breaker.
func Key(subscriptionUUID, target string) string {
	if subscriptionUUID == "" {
		return target
	}
	return subscriptionUUID + " " + target
}

func (b *Breakers) For(key string) *gobreaker.CircuitBreaker[int] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.byKey[key]; ok {
		return cb
	}

	threshold := b.failThreshold
	cb := gobreaker.NewCircuitBreaker[int](gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Timeout:     b.openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("dispatcher: breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	b.byKey[key] = cb
	return cb
}

// State reports the breaker state for key; keys never seen are closed.
func (b *Breakers) State(key string) gobreaker.State {
	b.mu.Lock()
	cb, ok := b.byKey[key]
	b.mu.Unlock()
	if !ok {
		return gobreaker.StateClosed
	}
	return cb.State()
}
