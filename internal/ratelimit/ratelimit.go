// Package ratelimit implements token-bucket admission control for
// quota-limited upstream APIs.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a thread-safe token bucket. Tokens accrue lazily from
// elapsed wall-clock time up to a fixed capacity; there is no background
// refill timer. Safe for concurrent callers.
type TokenBucket struct {
	mu         sync.Mutex
	rate       float64 // tokens per second
	capacity   float64
	tokens     float64
	lastRefill time.Time

	now func() time.Time // overridable for tests
}

// NewTokenBucket creates a bucket with the given refill rate (tokens per
// second) and capacity. A non-positive capacity defaults to the rate
// rounded down (minimum 1). The bucket starts full.
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	if capacity <= 0 {
		capacity = int(rate)
		if capacity < 1 {
			capacity = 1
		}
	}
	return &TokenBucket{
		rate:       rate,
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// refill credits tokens for the time elapsed since the last refill.
// Caller must hold mu.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
	}
	b.lastRefill = now
}

// Acquire attempts to take one token without blocking.
func (b *TokenBucket) Acquire() bool {
	return b.AcquireN(1)
}

// AcquireN attempts to take n tokens without blocking. Returns whether
// the tokens were available and deducted.
func (b *TokenBucket) AcquireN(n int) bool {
	if n <= 0 {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// Wait blocks the calling goroutine until one token is available or the
// context is cancelled.
func (b *TokenBucket) Wait(ctx context.Context) error {
	return b.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available or the context is cancelled.
// Starvation is impossible since tokens monotonically accrue.
func (b *TokenBucket) WaitN(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	// Poll at the rate one token takes to accrue. Sleeping only the
	// calling goroutine keeps other work on the scheduler unaffected.
	interval := time.Duration(float64(time.Second) / b.rate)
	if interval <= 0 {
		interval = time.Millisecond
	}

	for {
		if b.AcquireN(n) {
			return nil
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Available returns the current token count after a lazy refill.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}
