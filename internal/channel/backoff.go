package channel

import (
	"math"
	"time"
)

// Backoff computes reconnection delays: base * decay^n, capped at max.
// It is a pure calculator — it never starts timers. The Client owns
// scheduling and cancellation.
type Backoff struct {
	Base  time.Duration
	Decay float64
	Max   time.Duration
}

// NewBackoff creates a Backoff with the given bounds. Non-positive or
// nonsensical inputs fall back to defaults.
func NewBackoff(base time.Duration, decay float64, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if decay < 1 {
		decay = 1.5
	}
	if max < base {
		max = base
	}
	return &Backoff{Base: base, Decay: decay, Max: max}
}

// Interval returns the delay before reconnection attempt n (zero-based).
// The sequence is non-decreasing and never exceeds Max.
func (b *Backoff) Interval(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	d := float64(b.Base) * math.Pow(b.Decay, float64(n))
	if d > float64(b.Max) || math.IsInf(d, 1) {
		return b.Max
	}
	return time.Duration(d)
}
