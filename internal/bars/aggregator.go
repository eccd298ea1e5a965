// Package bars accumulates normalized ticks into time-bucketed OHLCV
// bars at several intervals simultaneously.
package bars

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"zerodha-stream/internal/metrics"
	"zerodha-stream/internal/models"
)

// BarHandler receives completed bars. Bars are emitted in bucket-closure
// order; the handler owns the Bar value it receives.
type BarHandler func(models.Bar)

// Stats is a snapshot of aggregator counters.
type Stats struct {
	TicksProcessed uint64
	BarsEmitted    uint64
	OpenBars       int
}

type barKey struct {
	symbol   string
	interval int
}

// Aggregator maintains one open bar per (symbol, interval) pair and emits
// completed bars to registered handlers. All state is owned by the single
// consumer loop feeding OnTick; the aggregator does no locking of its own.
type Aggregator struct {
	intervals []int
	handlers  []BarHandler
	open      map[barKey]*models.Bar
	logger    zerolog.Logger

	ticksProcessed uint64
	barsEmitted    uint64
}

// New creates an aggregator for the given bar intervals in seconds.
// An empty list defaults to one-minute bars.
func New(intervalsSeconds []int, logger zerolog.Logger) *Aggregator {
	if len(intervalsSeconds) == 0 {
		intervalsSeconds = []int{60}
	}
	return &Aggregator{
		intervals: intervalsSeconds,
		open:      make(map[barKey]*models.Bar),
		logger:    logger.With().Str("component", "bars").Logger(),
	}
}

// OnCompletedBar registers a handler for completed bars.
func (a *Aggregator) OnCompletedBar(h BarHandler) {
	a.handlers = append(a.handlers, h)
}

// OnTick processes one normalized tick. For each configured interval the
// tick either seeds a new bar, updates the open bar of its bucket, or
// closes the open bar and starts the next bucket. Within one call at most
// one bar per interval can complete.
func (a *Aggregator) OnTick(tick models.Tick) {
	if tick.LTP <= 0 {
		return
	}
	a.ticksProcessed++

	for _, interval := range a.intervals {
		key := barKey{symbol: tick.Symbol, interval: interval}
		start := BucketStart(tick.Timestamp, interval)

		bar, ok := a.open[key]
		if !ok {
			a.open[key] = newBar(tick, interval, start)
			continue
		}

		if start.After(bar.BucketStart) {
			a.emit(*bar)
			a.open[key] = newBar(tick, interval, start)
			continue
		}

		// Same bucket (or a late tick for an already-open bucket):
		// fold into the open bar.
		if tick.LTP > bar.High {
			bar.High = tick.LTP
		}
		if tick.LTP < bar.Low {
			bar.Low = tick.LTP
		}
		bar.Close = tick.LTP
		bar.Volume += tick.Volume
		bar.TickCount++
	}
}

// Flush force-emits every open bar regardless of completion, then clears
// them. Called at session end so no partial bar is silently lost.
func (a *Aggregator) Flush() {
	for key, bar := range a.open {
		a.emit(*bar)
		delete(a.open, key)
	}
}

// Stats returns a snapshot of the aggregator counters.
func (a *Aggregator) Stats() Stats {
	return Stats{
		TicksProcessed: a.ticksProcessed,
		BarsEmitted:    a.barsEmitted,
		OpenBars:       len(a.open),
	}
}

func (a *Aggregator) emit(bar models.Bar) {
	a.barsEmitted++
	metrics.BarsEmitted.WithLabelValues(strconv.Itoa(bar.IntervalSeconds)).Inc()

	a.logger.Debug().
		Str("symbol", bar.Symbol).
		Int("interval", bar.IntervalSeconds).
		Time("bucket", bar.BucketStart).
		Float64("open", bar.Open).
		Float64("high", bar.High).
		Float64("low", bar.Low).
		Float64("close", bar.Close).
		Int("ticks", bar.TickCount).
		Msg("Bar completed")

	for _, h := range a.handlers {
		h(bar)
	}
}

func newBar(tick models.Tick, interval int, start time.Time) *models.Bar {
	return &models.Bar{
		Symbol:          tick.Symbol,
		IntervalSeconds: interval,
		BucketStart:     start,
		Open:            tick.LTP,
		High:            tick.LTP,
		Low:             tick.LTP,
		Close:           tick.LTP,
		Volume:          tick.Volume,
		TickCount:       1,
	}
}

// BucketStart aligns a timestamp to the start of its bar interval,
// counted in whole intervals since midnight of the timestamp's day.
func BucketStart(t time.Time, intervalSeconds int) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	secs := int(t.Sub(midnight) / time.Second)
	aligned := (secs / intervalSeconds) * intervalSeconds
	return midnight.Add(time.Duration(aligned) * time.Second)
}
