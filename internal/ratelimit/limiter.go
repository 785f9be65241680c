// Package ratelimit implements the per-principal token bucket backing the
// rate limit middleware layer (spec.md §4.6 item 3). Buckets are sharded per
// principal in a sync.Map, the same sharding idiom go-catrate's Limiter uses
// for its per-category sliding windows, and each bucket's token count is
// mutated with a lock-free CAS retry loop rather than a mutex, matching the
// "atomic token subtraction" requirement of spec.md §4.6/§5.
//
// The design is the in-process analogue of the teacher pack's Redis-backed
// token bucket (rate-limiter/gateway/ratelimiter/token_bucket.go): the same
// refill arithmetic (tokens = min(burst, tokens + elapsed*rate)), but
// without a network round trip, because a Redis call on this path would
// blow the sub-microsecond, never-blocks contract spec.md places on every
// middleware layer.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

const milliPerToken = 1000

// bucket is one principal's token bucket state.
type bucket struct {
	tokensMilli     atomic.Int64
	lastRefillNanos atomic.Int64
}

// Limiter is a sharded, per-principal token bucket rate limiter.
type Limiter struct {
	buckets sync.Map // string -> *bucket
	rps     float64
	burst   int64
}

// New creates a Limiter allowing rps requests per second per principal, with
// the given burst capacity.
func New(rps float64, burst int64) *Limiter {
	return &Limiter{rps: rps, burst: burst}
}

// Result is the outcome of an Allow call.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Allow attempts to consume one token for principal. It never blocks.
func (l *Limiter) Allow(principal string) Result {
	b := l.bucketFor(principal)
	now := time.Now().UnixNano()
	maxMilli := l.burst * milliPerToken

	for {
		last := b.lastRefillNanos.Load()
		cur := b.tokensMilli.Load()

		elapsedSec := float64(now-last) / float64(time.Second)
		if elapsedSec < 0 {
			elapsedSec = 0
		}
		refill := int64(elapsedSec * l.rps * milliPerToken)

		next := cur
		if refill > 0 {
			next = cur + refill
			if next > maxMilli {
				next = maxMilli
			}
		}

		allowed := next >= milliPerToken
		final := next
		if allowed {
			final -= milliPerToken
		}

		if !b.tokensMilli.CompareAndSwap(cur, final) {
			continue // lost the race with a concurrent request for the same principal; retry
		}
		if refill > 0 {
			// Best-effort: losing this CAS just means the next call recomputes
			// elapsed from a slightly stale timestamp, which only affects
			// refill precision, not correctness.
			b.lastRefillNanos.CompareAndSwap(last, now)
		}

		if allowed {
			return Result{Allowed: true, Remaining: final / milliPerToken}
		}

		retryMilli := milliPerToken - final
		retrySec := float64(retryMilli) / milliPerToken / l.rps
		return Result{
			Allowed:    false,
			Remaining:  final / milliPerToken,
			RetryAfter: time.Duration(retrySec * float64(time.Second)),
		}
	}
}

func (l *Limiter) bucketFor(principal string) *bucket {
	if v, ok := l.buckets.Load(principal); ok {
		return v.(*bucket)
	}

	b := &bucket{}
	b.tokensMilli.Store(l.burst * milliPerToken)
	b.lastRefillNanos.Store(time.Now().UnixNano())

	actual, _ := l.buckets.LoadOrStore(principal, b)
	return actual.(*bucket)
}
