package bars

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodha-stream/internal/models"
)

func tickAt(symbol string, ts time.Time, price float64, volume int64) models.Tick {
	return models.Tick{
		Symbol:    symbol,
		Token:     1,
		Timestamp: ts,
		LTP:       price,
		Volume:    volume,
	}
}

func collect(a *Aggregator) *[]models.Bar {
	var bars []models.Bar
	a.OnCompletedBar(func(b models.Bar) {
		bars = append(bars, b)
	})
	return &bars
}

func TestMinuteBarCompletesOnBucketRollover(t *testing.T) {
	a := New([]int{60}, zerolog.Nop())
	bars := collect(a)

	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	a.OnTick(tickAt("RELIANCE", base, 100, 10))                    // 09:15:00
	a.OnTick(tickAt("RELIANCE", base.Add(30*time.Second), 105, 5)) // 09:15:30
	a.OnTick(tickAt("RELIANCE", base.Add(45*time.Second), 98, 7))  // 09:15:45
	require.Empty(t, *bars, "no bar completes while the bucket is open")

	a.OnTick(tickAt("RELIANCE", base.Add(65*time.Second), 102, 3)) // 09:16:05 rolls the bucket

	require.Len(t, *bars, 1)
	bar := (*bars)[0]
	assert.Equal(t, "RELIANCE", bar.Symbol)
	assert.Equal(t, 60, bar.IntervalSeconds)
	assert.Equal(t, base, bar.BucketStart)
	assert.Equal(t, 100.0, bar.Open)
	assert.Equal(t, 105.0, bar.High)
	assert.Equal(t, 98.0, bar.Low)
	assert.Equal(t, 98.0, bar.Close)
	assert.Equal(t, int64(22), bar.Volume)
	assert.Equal(t, 3, bar.TickCount)

	// The rolling tick seeds the next bucket.
	assert.Equal(t, 1, a.Stats().OpenBars)
}

func TestMultipleIntervalsTrackedIndependently(t *testing.T) {
	a := New([]int{60, 300}, zerolog.Nop())
	bars := collect(a)

	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	a.OnTick(tickAt("TCS", base, 3800, 1))
	a.OnTick(tickAt("TCS", base.Add(90*time.Second), 3810, 1)) // closes the 1m bar only

	require.Len(t, *bars, 1)
	assert.Equal(t, 60, (*bars)[0].IntervalSeconds)
	assert.Equal(t, 2, a.Stats().OpenBars)

	a.OnTick(tickAt("TCS", base.Add(301*time.Second), 3820, 1)) // closes both

	require.Len(t, *bars, 3)
	intervals := map[int]int{}
	for _, b := range *bars {
		intervals[b.IntervalSeconds]++
	}
	assert.Equal(t, 2, intervals[60])
	assert.Equal(t, 1, intervals[300])
}

func TestSymbolsDoNotShareBuckets(t *testing.T) {
	a := New([]int{60}, zerolog.Nop())
	bars := collect(a)

	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	a.OnTick(tickAt("RELIANCE", base, 2450, 1))
	a.OnTick(tickAt("TCS", base, 3800, 1))
	a.OnTick(tickAt("RELIANCE", base.Add(61*time.Second), 2451, 1))

	require.Len(t, *bars, 1)
	assert.Equal(t, "RELIANCE", (*bars)[0].Symbol)
	assert.Equal(t, 2, a.Stats().OpenBars)
}

func TestNonPositivePricesIgnored(t *testing.T) {
	a := New([]int{60}, zerolog.Nop())

	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	a.OnTick(tickAt("RELIANCE", base, 0, 1))
	a.OnTick(tickAt("RELIANCE", base, -5, 1))

	assert.Equal(t, uint64(0), a.Stats().TicksProcessed)
	assert.Equal(t, 0, a.Stats().OpenBars)
}

func TestFlushEmitsOpenBars(t *testing.T) {
	a := New([]int{60, 300}, zerolog.Nop())
	bars := collect(a)

	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	a.OnTick(tickAt("RELIANCE", base, 2450, 10))

	a.Flush()
	assert.Len(t, *bars, 2)
	assert.Equal(t, 0, a.Stats().OpenBars)

	// Flushing again is a no-op.
	a.Flush()
	assert.Len(t, *bars, 2)
}

func TestDefaultIntervalIsOneMinute(t *testing.T) {
	a := New(nil, zerolog.Nop())
	base := time.Date(2024, 6, 3, 9, 15, 20, 0, time.UTC)
	a.OnTick(tickAt("RELIANCE", base, 100, 1))

	assert.Equal(t, 1, a.Stats().OpenBars)
}

func TestBucketStartAlignment(t *testing.T) {
	tests := []struct {
		name     string
		ts       time.Time
		interval int
		want     time.Time
	}{
		{
			"minute mid-bucket",
			time.Date(2024, 6, 3, 9, 15, 45, 0, time.UTC), 60,
			time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC),
		},
		{
			"five minute",
			time.Date(2024, 6, 3, 9, 17, 10, 0, time.UTC), 300,
			time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC),
		},
		{
			"exact boundary is its own bucket",
			time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC), 60,
			time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC),
		},
		{
			"daily aligns to midnight",
			time.Date(2024, 6, 3, 15, 29, 59, 0, time.UTC), 86400,
			time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BucketStart(tt.ts, tt.interval))
		})
	}
}

// Property: every emitted bar satisfies Low <= Open, Close <= High, has
// a positive tick count and a bucket start aligned to its interval.
func TestProperty_BarInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)

	properties.Property("OHLC ordering, tick counts and alignment hold", prop.ForAll(
		func(prices []float64, stepSeconds []int) bool {
			a := New([]int{60}, zerolog.Nop())
			var emitted []models.Bar
			a.OnCompletedBar(func(b models.Bar) { emitted = append(emitted, b) })

			ts := base
			for i, p := range prices {
				if i < len(stepSeconds) {
					ts = ts.Add(time.Duration(stepSeconds[i]) * time.Second)
				}
				a.OnTick(tickAt("X", ts, p, 1))
			}
			a.Flush()

			totalTicks := 0
			for _, b := range emitted {
				if b.Low > b.Open || b.Low > b.Close || b.High < b.Open || b.High < b.Close || b.Low > b.High {
					return false
				}
				if b.TickCount <= 0 {
					return false
				}
				if !b.BucketStart.Equal(BucketStart(b.BucketStart, 60)) {
					return false
				}
				totalTicks += b.TickCount
			}
			return totalTicks == len(prices)
		},
		gen.SliceOfN(40, gen.Float64Range(1, 5000)),
		gen.SliceOfN(40, gen.IntRange(0, 90)),
	))

	properties.TestingRun(t)
}
