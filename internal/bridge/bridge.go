// Package bridge hands price updates off from the feed source's execution
// context into a single cooperative consumer loop, with bounded-queue
// backpressure, payload normalization and multi-subscriber fanout.
package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"zerodha-stream/internal/metrics"
	"zerodha-stream/internal/models"
)

// Consumer receives normalized ticks from the bridge. OnTick for one tick
// never overlaps with OnTick for the next tick on the same consumer: the
// consumer loop completes a full fanout before dequeuing again.
type Consumer interface {
	OnTick(tick models.Tick)
}

// ConsumerFunc is a function adapter for Consumer.
type ConsumerFunc func(models.Tick)

// OnTick implements Consumer.
func (f ConsumerFunc) OnTick(tick models.Tick) { f(tick) }

// Config holds bridge configuration.
type Config struct {
	// QueueSize is the bounded queue capacity between the producer and
	// the consumer loop.
	QueueSize  int
	Normalizer NormalizerConfig
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:  10000,
		Normalizer: DefaultNormalizerConfig(),
	}
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	TicksReceived  uint64
	TicksDropped   uint64
	TicksInvalid   uint64
	BroadcastCount uint64
	QueueLen       int
	QueueCap       int
}

// Bridge is the thread-safe handoff between the feed source and the
// pipeline. Submit is safe to call from any goroutine; all downstream
// state (subscribers' aggregates, order books) is only ever touched from
// the single consumer loop.
type Bridge struct {
	config Config
	norm   *Normalizer
	logger zerolog.Logger

	queue    chan models.RawTick
	done     chan struct{}
	loopDone chan struct{}

	mu        sync.RWMutex
	consumers []Consumer
	started   bool

	stopOnce sync.Once

	ticksReceived  atomic.Uint64
	ticksDropped   atomic.Uint64
	ticksInvalid   atomic.Uint64
	broadcastCount atomic.Uint64
}

// New creates a bridge with the given configuration.
func New(cfg Config, logger zerolog.Logger) *Bridge {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Bridge{
		config:   cfg,
		norm:     NewNormalizer(cfg.Normalizer),
		logger:   logger.With().Str("component", "bridge").Logger(),
		queue:    make(chan models.RawTick, cfg.QueueSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

// Subscribe registers a fanout target. Subscribers registered after Start
// begin receiving from the next dequeued tick.
func (b *Bridge) Subscribe(c Consumer) {
	b.mu.Lock()
	b.consumers = append(b.consumers, c)
	b.mu.Unlock()
}

// SubscribeFunc registers a plain function as a fanout target.
func (b *Bridge) SubscribeFunc(fn func(models.Tick)) {
	b.Subscribe(ConsumerFunc(fn))
}

// Submit hands a raw tick into the pipeline. It is called from the feed
// source's own goroutine, never blocks and never panics. Malformed
// payloads are counted and dropped before they reach the queue; a valid
// tick arriving while the queue is full is dropped and counted, favoring
// freshness over completeness.
func (b *Bridge) Submit(raw models.RawTick) {
	if !validate(raw) {
		b.ticksInvalid.Add(1)
		metrics.TicksInvalid.Inc()
		return
	}

	select {
	case b.queue <- raw:
		b.ticksReceived.Add(1)
		metrics.TicksReceived.Inc()
		metrics.QueueSize.Set(float64(len(b.queue)))
	default:
		b.ticksDropped.Add(1)
		metrics.TicksDropped.Inc()
	}
}

// validate is the acceptance gate: an instrument identifier plus at least
// one recognizable price field. Protects downstream consumers from
// partially-formed payloads.
func validate(raw models.RawTick) bool {
	if raw == nil {
		return false
	}
	if _, ok := raw["token"]; !ok {
		return false
	}
	for _, key := range priceKeys {
		if _, ok := raw[key]; ok {
			return true
		}
	}
	return false
}

var priceKeys = []string{"last_price", "ltp", "best_bid_price", "best_ask_price"}

// Start launches the consumer loop. It returns immediately; the loop
// runs until Stop is called or the context is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go b.consumeLoop(ctx)
	b.logger.Info().Int("queue_size", b.config.QueueSize).Msg("Bridge started")
}

// Stop signals the consumer loop to exit and waits for it. An in-flight
// fanout is allowed to finish; ticks still queued are discarded. After
// Stop returns, subscriber state is safe to touch from the caller (e.g.
// flushing open bars).
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		b.mu.RLock()
		started := b.started
		b.mu.RUnlock()
		if started {
			<-b.loopDone
		}
		b.logger.Info().Msg("Bridge stopped")
	})
}

// consumeLoop owns the queue. It processes one tick fully, including the
// complete fanout, before dequeuing the next, so no subscriber ever sees
// ticks out of arrival order.
func (b *Bridge) consumeLoop(ctx context.Context) {
	defer close(b.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case raw := <-b.queue:
			metrics.QueueSize.Set(float64(len(b.queue)))

			tick, ok := b.norm.Normalize(raw)
			if !ok {
				b.ticksInvalid.Add(1)
				metrics.TicksInvalid.Inc()
				continue
			}

			b.fanout(tick)
			b.broadcastCount.Add(1)
			metrics.TicksBroadcast.Inc()
		}
	}
}

// fanout delivers one tick to every subscriber. Subscribers run
// concurrently with each other but the loop waits for all of them before
// the next tick is dequeued.
func (b *Bridge) fanout(tick models.Tick) {
	b.mu.RLock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.RUnlock()

	if len(consumers) == 0 {
		return
	}
	if len(consumers) == 1 {
		consumers[0].OnTick(tick)
		return
	}

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c Consumer) {
			defer wg.Done()
			c.OnTick(tick)
		}(c)
	}
	wg.Wait()
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		TicksReceived:  b.ticksReceived.Load(),
		TicksDropped:   b.ticksDropped.Load(),
		TicksInvalid:   b.ticksInvalid.Load(),
		BroadcastCount: b.broadcastCount.Load(),
		QueueLen:       len(b.queue),
		QueueCap:       cap(b.queue),
	}
}

// QueueUtilization returns the queue fill level as a percentage.
// Useful for health checks.
func (b *Bridge) QueueUtilization() float64 {
	if cap(b.queue) == 0 {
		return 0
	}
	return float64(len(b.queue)) / float64(cap(b.queue)) * 100
}
