package queue

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes retry delays: exponential growth from Min with a
// multiplicative jitter, capped at Max.
type Backoff struct {
	Min    time.Duration
	Max    time.Duration
	Factor float64

	// Rand returns a value in [0, 1). Defaults to math/rand; injectable
	// for deterministic tests.
	Rand func() float64
}

// DefaultBackoff matches the retry schedule the server side is tuned for:
// 1s, 2s, 4s, ... capped at 60s.
func DefaultBackoff() Backoff {
	return Backoff{Min: time.Second, Max: time.Minute, Factor: 2}
}

// Delay returns the sleep before attempt n (zero-based). Jitter spreads
// simultaneous clients over ±25% of the nominal delay.
func (b Backoff) Delay(attempt int) time.Duration {
	d := float64(b.Min) * math.Pow(b.Factor, float64(attempt))
	if d > float64(b.Max) {
		d = float64(b.Max)
	}

	r := b.Rand
	if r == nil {
		r = rand.Float64
	}
	jitter := 0.75 + 0.5*r()
	d *= jitter

	if d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d < float64(b.Min) {
		d = float64(b.Min)
	}
	return time.Duration(d)
}
