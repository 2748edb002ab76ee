package broadcast

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// -----------------------------------------------------------------------------

// RateLimiter enforces a per-connection sliding-window budget on outbound
// data messages. One bursty subscriber gets throttled without affecting the
// fan-out to anyone else.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	window time.Duration
	budget int
	clock  clockwork.Clock
}

// -----------------------------------------------------------------------------

func NewRateLimiter(window time.Duration, budget int, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{
		windows: make(map[string][]time.Time),
		window:  window,
		budget:  budget,
		clock:   clock,
	}
}

// -----------------------------------------------------------------------------

// Allow reports whether one more message may be sent to id within the current
// window. Timestamps older than the window are pruned lazily on each call.
// A denied attempt is NOT recorded against the budget.
func (rl *RateLimiter) Allow(id string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	cutoff := now.Add(-rl.window)

	stamps := rl.windows[id]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= rl.budget {
		rl.windows[id] = kept
		return false
	}

	rl.windows[id] = append(kept, now)
	return true
}

// -----------------------------------------------------------------------------

// Forget drops the window for a disconnected connection.
func (rl *RateLimiter) Forget(id string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, id)
}

// -----------------------------------------------------------------------------

// WindowCount returns the number of sends currently counted for id.
func (rl *RateLimiter) WindowCount(id string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.clock.Now().Add(-rl.window)
	count := 0
	for _, ts := range rl.windows[id] {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
