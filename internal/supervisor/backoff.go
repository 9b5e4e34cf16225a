package supervisor

import (
	"math/rand"
	"time"
)

// Backoff paces retries at a constant base rate with random jitter on
// top. The relay handshake is the only retry loop in a run and it polls
// a master that may simply not be up yet, so ramping the delay up only
// delays the join; jitter is enough to keep a fleet of relays from
// hammering the master in lockstep.
type Backoff struct {
	base   time.Duration
	jitter time.Duration
	rng    *rand.Rand
	tries  int
}

// NewBackoff creates a Backoff sleeping base plus up to jitter extra per
// attempt. The seed makes the jitter sequence deterministic for a given
// caller; seeding with the process PID de-synchronizes concurrent
// retriers.
func NewBackoff(base, jitter time.Duration, seed int64) *Backoff {
	return &Backoff{
		base:   base,
		jitter: jitter,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the delay before the next attempt and counts the attempt.
func (b *Backoff) Next() time.Duration {
	b.tries++
	d := b.base
	if b.jitter > 0 {
		d += time.Duration(b.rng.Int63n(int64(b.jitter)))
	}
	return d
}

// Attempts returns how many delays have been handed out.
func (b *Backoff) Attempts() int {
	return b.tries
}
