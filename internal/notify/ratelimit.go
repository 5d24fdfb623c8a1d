package notify

import (
	"context"
	"sync"
	"time"
)

// sendLimiter is a token bucket shared by every send of one bot, keeping a
// burst of new SMS under the Bot API flood limits.
type sendLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	rate   float64 // tokens per second
	last   time.Time
	now    func() time.Time
}

func newSendLimiter(burst int, perSecond float64) *sendLimiter {
	if burst <= 0 {
		burst = 20
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return &sendLimiter{
		tokens: float64(burst),
		burst:  float64(burst),
		rate:   perSecond,
		last:   time.Now(),
		now:    time.Now,
	}
}

// reserve takes a token if one is available, otherwise it returns how long
// until the next one.
func (l *sendLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return 0
	}
	return time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
}

// Wait blocks until a send is allowed or ctx ends.
func (l *sendLimiter) Wait(ctx context.Context) error {
	for {
		d := l.reserve()
		if d == 0 {
			return nil
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
