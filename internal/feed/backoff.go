package feed

import (
	"math/rand"
	"time"
)

const (
	backoffInitial    = 500 * time.Millisecond
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
)

// backoff implements truncated exponential backoff with full jitter:
// each wait is drawn uniformly from [0, current], and current doubles up
// to the cap. Spreads reconnect storms across instances.
type backoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = backoffInitial
	}
	if max <= 0 {
		max = backoffMax
	}
	return &backoff{initial: initial, max: max, current: initial}
}

// next returns the jittered wait and advances the ceiling.
func (b *backoff) next() time.Duration {
	ceil := b.current

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}

	return time.Duration(rand.Int63n(int64(ceil) + 1))
}

// reset restores the ceiling to the initial wait after a success.
func (b *backoff) reset() {
	b.current = b.initial
}
