package session

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: exponential growth from Base capped at
// Cap, plus uniform jitter in [0, Jitter) so that many sessions recovering
// from the same outage do not retry in lockstep.
type Backoff struct {
	Base   time.Duration
	Cap    time.Duration
	Jitter time.Duration

	// Rand returns a value in [0, 1). Nil uses the shared math/rand source;
	// tests inject a deterministic one.
	Rand func() float64
}

// DefaultBackoff matches the configured session defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   500 * time.Millisecond,
		Cap:    30 * time.Second,
		Jitter: 250 * time.Millisecond,
	}
}

// Delay returns the wait before reconnect attempt n (n starts at 0).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	exp := b.Cap
	// Shifting past 62 bits would overflow; anything that far out is capped
	// anyway.
	if attempt < 62 {
		exp = b.Base << uint(attempt)
		if exp > b.Cap || exp < b.Base {
			exp = b.Cap
		}
	}

	random := b.Rand
	if random == nil {
		random = rand.Float64
	}

	return exp + time.Duration(random()*float64(b.Jitter))
}
