package session

import (
	"math/rand/v2"
	"time"
)

// Default backoff policy. The shape (monotonic doubling with ceiling and
// jitter) is fixed; the constants are tunable via Config.
const (
	DefaultBackoffFloor   = 1 * time.Second
	DefaultBackoffCeiling = 30 * time.Second
	DefaultBackoffJitter  = 500 * time.Millisecond
)

// Backoff computes reconnect delays: starting at the floor, doubling on each
// consecutive failure up to the ceiling, plus a uniform random jitter so that
// many agents recovering from a shared outage do not reconnect in lockstep.
// Not safe for concurrent use; the session serializes access.
type Backoff struct {
	floor   time.Duration
	ceiling time.Duration
	jitter  time.Duration
	next    time.Duration
}

// NewBackoff creates a backoff with the given floor, ceiling and jitter bound.
// Zero values fall back to the defaults.
func NewBackoff(floor, ceiling, jitter time.Duration) *Backoff {
	if floor <= 0 {
		floor = DefaultBackoffFloor
	}
	if ceiling <= 0 {
		ceiling = DefaultBackoffCeiling
	}
	if ceiling < floor {
		ceiling = floor
	}
	if jitter < 0 {
		jitter = 0
	}

	return &Backoff{
		floor:   floor,
		ceiling: ceiling,
		jitter:  jitter,
		next:    floor,
	}
}

// Next returns the delay for the next reconnect attempt and advances the
// non-jittered component to min(2*current, ceiling).
func (b *Backoff) Next() time.Duration {
	delay := b.next

	b.next *= 2
	if b.next > b.ceiling {
		b.next = b.ceiling
	}

	if b.jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(b.jitter)))
	}

	return delay
}

// Base returns the non-jittered component of the next delay.
func (b *Backoff) Base() time.Duration {
	return b.next
}

// Reset returns the backoff to the floor value. Called on every successful
// open.
func (b *Backoff) Reset() {
	b.next = b.floor
}
