package worker

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 3 * time.Second
	backoffCap  = 10 * time.Minute
)

// ExponentialBackoff returns the delay before retry number attempt+1.
// Provider outages are the usual failure mode here, so the delays grow
// quickly: 3s, 6s, 12s, ... capped at backoffCap.
func ExponentialBackoff(attempt int) time.Duration {
	delay := backoffBase

	for i := 0; i < attempt; i++ {
		delay *= 2

		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}

	// jitter up to 500ms so retries from one burst spread out
	delay += time.Duration(rand.Intn(500)) * time.Millisecond
	return delay
}
