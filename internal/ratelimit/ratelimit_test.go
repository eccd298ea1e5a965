package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestBucket(rate float64, capacity int) (*TokenBucket, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)}
	b := NewTokenBucket(rate, capacity)
	b.now = clock.now
	b.lastRefill = clock.t
	return b, clock
}

func TestBucketStartsFull(t *testing.T) {
	b, _ := newTestBucket(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, b.Acquire(), "acquire %d should succeed from a full bucket", i+1)
	}
	assert.False(t, b.Acquire(), "acquire past capacity should fail")
}

func TestRefillAfterElapsedTime(t *testing.T) {
	b, clock := newTestBucket(10, 10)

	for i := 0; i < 10; i++ {
		require.True(t, b.Acquire())
	}
	require.False(t, b.Acquire())

	// 100ms at 10 tokens/sec accrues exactly one token.
	clock.advance(100 * time.Millisecond)
	assert.True(t, b.Acquire())
	assert.False(t, b.Acquire())
}

func TestRefillCapsAtCapacity(t *testing.T) {
	b, clock := newTestBucket(10, 5)

	clock.advance(time.Hour)
	assert.InDelta(t, 5.0, b.Available(), 1e-9)
}

func TestAcquireNPartialDoesNotDeduct(t *testing.T) {
	b, _ := newTestBucket(1, 3)

	assert.False(t, b.AcquireN(4))
	assert.InDelta(t, 3.0, b.Available(), 1e-9, "failed acquire must not consume tokens")
	assert.True(t, b.AcquireN(3))
}

func TestDefaultCapacityFromRate(t *testing.T) {
	b := NewTokenBucket(3, 0)
	assert.InDelta(t, 3.0, b.Available(), 1e-9)

	b = NewTokenBucket(0.5, 0)
	assert.InDelta(t, 1.0, b.Available(), 1e-9)
}

func TestWaitReturnsOnContextCancel(t *testing.T) {
	b, _ := newTestBucket(0.001, 1)
	require.True(t, b.Acquire())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitSucceedsWhenTokenAccrues(t *testing.T) {
	b := NewTokenBucket(100, 1)
	require.True(t, b.Acquire())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, b.Wait(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

// Property: token count never exceeds capacity and never goes negative,
// regardless of the interleaving of acquires and elapsed time.
func TestProperty_TokensBoundedByCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("tokens stay within [0, capacity]", prop.ForAll(
		func(rate float64, capacity int, steps []int) bool {
			b, clock := newTestBucket(rate, capacity)

			for _, step := range steps {
				if step%2 == 0 {
					clock.advance(time.Duration(step) * time.Millisecond)
				}
				b.AcquireN(step % 5)

				avail := b.Available()
				if avail < 0 || avail > float64(capacity)+1e-9 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0.5, 100),
		gen.IntRange(1, 50),
		gen.SliceOf(gen.IntRange(0, 500)),
	))

	properties.TestingRun(t)
}

// Property: after draining the bucket, exactly floor(elapsed*rate) more
// acquires succeed, up to capacity.
func TestProperty_AccrualMatchesElapsedTime(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("accrual is proportional to elapsed time", prop.ForAll(
		func(rate float64, elapsedMs int) bool {
			const capacity = 1000
			b, clock := newTestBucket(rate, capacity)

			// Drain.
			if !b.AcquireN(capacity) {
				return false
			}

			clock.advance(time.Duration(elapsedMs) * time.Millisecond)

			expected := int(rate * float64(elapsedMs) / 1000.0)
			if expected > capacity {
				expected = capacity
			}

			granted := 0
			for b.Acquire() {
				granted++
				if granted > capacity {
					return false
				}
			}
			// Floating point accrual can land within one token of the
			// integer expectation.
			return granted == expected || granted == expected+1 || granted == expected-1
		},
		gen.Float64Range(1, 50),
		gen.IntRange(0, 10_000),
	))

	properties.TestingRun(t)
}
