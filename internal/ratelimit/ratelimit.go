// Package ratelimit spaces out probe calls made by a single worker.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"time"
)

const (
	DefaultMinDelay = 1 * time.Second
	DefaultMaxDelay = 2 * time.Second
)

// Limiter sleeps a random duration in [min, max] before each probe.
// One Limiter belongs to one worker; it is not safe for concurrent use.
type Limiter struct {
	min time.Duration
	max time.Duration
	rng *rand.Rand
}

// New creates a limiter; bounds are swapped if given in the wrong order
func New(min, max time.Duration, seed uint64) *Limiter {
	if min < 0 {
		min = 0
	}
	if max < min {
		min, max = max, min
	}
	return &Limiter{
		min: min,
		max: max,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next draws the next delay without sleeping
func (l *Limiter) Next() time.Duration {
	if l.max <= l.min {
		return l.min
	}
	return l.min + time.Duration(l.rng.Int64N(int64(l.max-l.min)+1))
}

// Wait blocks for the next delay or until ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	d := l.Next()
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
