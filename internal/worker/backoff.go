package worker

import "time"

// Policy is the retry policy of a delivery chain: exponential backoff without
// jitter, capped at Max, for at most MaxAttempts attempts in total.
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{Initial: 60 * time.Second, Max: time.Hour, MaxAttempts: 5}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Initial <= 0 {
		p.Initial = d.Initial
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Delay is the wait after the given failed attempt (1-based):
// Initial * 2^(attempt-1), never more than Max.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	delay := p.Initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Max {
			return p.Max
		}
	}
	return delay
}

// Exhausted reports whether no attempt may follow the given one.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.normalized().MaxAttempts
}
