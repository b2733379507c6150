package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter enforces the site's single process-wide minimum interval
// between requests. The target server applies one floor per client
// regardless of which logical operation triggers the request, so the last
// request timestamp is one shared, mutex-guarded clock, never per-caller
// state.
type RateLimiter struct {
	mu       sync.Mutex
	last     time.Time
	interval time.Duration
	fast     bool // Fast mode skips the wait but still stamps the clock
	log      *logrus.Entry
}

// NewRateLimiter creates a RateLimiter with the given global floor.
func NewRateLimiter(interval time.Duration, fast bool, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{interval: interval, fast: fast, log: log}
}

// Throttle blocks until at least the configured interval has elapsed since
// the previous Throttle call from any caller, then records the new
// timestamp. Jitter is positive-only so the measured gap never undercuts
// the floor.
func (rl *RateLimiter) Throttle(ctx context.Context) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.fast || rl.interval <= 0 {
		rl.last = time.Now()
		return nil
	}

	if !rl.last.IsZero() {
		elapsed := time.Since(rl.last)
		if elapsed < rl.interval {
			sleep := rl.interval - elapsed
			if jitterRange := int64(sleep) / 10; jitterRange > 0 {
				sleep += time.Duration(rand.Int63n(jitterRange))
			}
			rl.log.WithFields(logrus.Fields{
				"sleep": sleep, "required_interval": rl.interval, "elapsed": elapsed,
			}).Debug("Rate limit applying sleep")
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	rl.last = time.Now()
	return nil
}

// LastRequest returns the recorded timestamp of the most recent Throttle.
func (rl *RateLimiter) LastRequest() time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.last
}
