// Package backoff computes truncated exponential delays for reconnects and
// delivery retries.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// JitterFraction is the spread applied by Backoff.Next (±25 %).
const JitterFraction = 0.25

// Policy describes an exponential schedule: Initial * Factor^attempt, capped
// at Max. The zero Factor is treated as 2.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// Delay returns the un-jittered delay before retry number attempt (0-based).
// It is pure, so callers and tests can reason about the schedule directly.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	factor := p.Factor
	if factor < 1 {
		factor = 2
	}
	d := float64(p.Initial) * math.Pow(factor, float64(attempt))
	if p.Max > 0 && (d > float64(p.Max) || math.IsInf(d, 0)) {
		return p.Max
	}
	return time.Duration(d)
}

// Jitter spreads d uniformly over [d*(1-frac), d*(1+frac)].
func Jitter(d time.Duration, frac float64) time.Duration {
	if d <= 0 || frac <= 0 {
		return d
	}
	j := time.Duration(float64(d) * frac * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	if d+j < 0 {
		return 0
	}
	return d + j
}

// Backoff walks a Policy one attempt at a time. It is not safe for concurrent
// use; each reconnect loop owns its own.
type Backoff struct {
	policy  Policy
	attempt int
}

// New returns a Backoff starting at attempt zero.
func New(p Policy) *Backoff {
	return &Backoff{policy: p}
}

// Next returns the jittered delay for the current attempt and advances.
func (b *Backoff) Next() time.Duration {
	d := Jitter(b.policy.Delay(b.attempt), JitterFraction)
	b.attempt++
	return d
}

// Attempt is the number of delays handed out since the last Reset.
func (b *Backoff) Attempt() int { return b.attempt }

// Reset returns to the initial delay, e.g. after a successful connect.
func (b *Backoff) Reset() { b.attempt = 0 }

// Sleep waits for d or until ctx is done. It reports whether the full delay
// elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
