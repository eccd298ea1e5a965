// Package metrics exposes Prometheus collectors for the pipeline's
// counters. Counters are the primary observability signal: no individual
// bad tick or failed historical chunk halts the system, it is all
// accounted for here.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TicksReceived counts raw ticks accepted into the bridge queue.
	TicksReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_ticks_received_total",
		Help: "Total ticks accepted by the ingestion bridge",
	})

	// TicksDropped counts valid ticks dropped because the queue was full.
	TicksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_ticks_dropped_total",
		Help: "Total ticks dropped due to queue full",
	})

	// TicksInvalid counts ticks rejected by the validation gate.
	TicksInvalid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_ticks_invalid_total",
		Help: "Total ticks rejected as malformed",
	})

	// TicksBroadcast counts fanout cycles completed.
	TicksBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_ticks_broadcast_total",
		Help: "Total ticks broadcast to subscribers",
	})

	// QueueSize tracks the bridge queue depth.
	QueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_queue_size",
		Help: "Current ingestion queue depth",
	})

	// BarsEmitted counts completed bars by interval.
	BarsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bars_emitted_total",
		Help: "Total completed bars emitted",
	}, []string{"interval"})

	// OrdersTriggered counts conditional order firings by source.
	OrdersTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_triggered_total",
		Help: "Total conditional order submissions emitted",
	}, []string{"source"})

	// HistoryRetries counts retried historical requests.
	HistoryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "history_retries_total",
		Help: "Total historical request retries",
	})

	// HistoryChunksFailed counts chunk requests that returned no data.
	HistoryChunksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "history_chunks_failed_total",
		Help: "Total failed or empty historical chunks",
	})

	// HistoryGaps counts continuity gaps detected in merged series.
	HistoryGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "history_continuity_gaps_total",
		Help: "Total continuity gaps detected in merged candle series",
	})
)
