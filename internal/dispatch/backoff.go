package dispatch

import (
	"math/rand"
	"sync"
	"time"
)

const jitterWindow = 250 * time.Millisecond

var (
	jitterMu     sync.Mutex
	jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// backoffFor returns the delay before retry number attempt (1-based):
// base doubled per attempt, capped at max.
func backoffFor(attempt int, base, max time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay = nextBackoff(delay, base, max)
		if delay == max {
			break
		}
	}
	if delay > max {
		return max
	}
	return delay
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitterMu.Lock()
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	jitterMu.Unlock()
	return d + jitter
}
