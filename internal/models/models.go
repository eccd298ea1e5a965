// Package models provides domain models for the streaming pipeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	BSE Exchange = "BSE"
	NFO Exchange = "NFO" // F&O
	MCX Exchange = "MCX" // Commodity
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the exit side for a position entered on this side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Interval represents a candle interval supported by the historical API.
type Interval string

const (
	IntervalOneMinute     Interval = "ONE_MINUTE"
	IntervalThreeMinute   Interval = "THREE_MINUTE"
	IntervalFiveMinute    Interval = "FIVE_MINUTE"
	IntervalTenMinute     Interval = "TEN_MINUTE"
	IntervalFifteenMinute Interval = "FIFTEEN_MINUTE"
	IntervalThirtyMinute  Interval = "THIRTY_MINUTE"
	IntervalOneHour       Interval = "ONE_HOUR"
	IntervalOneDay        Interval = "ONE_DAY"
)

// Seconds returns the nominal interval spacing in seconds, or 0 for an
// unknown interval.
func (i Interval) Seconds() int {
	switch i {
	case IntervalOneMinute:
		return 60
	case IntervalThreeMinute:
		return 180
	case IntervalFiveMinute:
		return 300
	case IntervalTenMinute:
		return 600
	case IntervalFifteenMinute:
		return 900
	case IntervalThirtyMinute:
		return 1800
	case IntervalOneHour:
		return 3600
	case IntervalOneDay:
		return 86400
	}
	return 0
}

// Valid reports whether the interval is one of the supported values.
func (i Interval) Valid() bool {
	return i.Seconds() > 0
}

// ParseInterval converts a string to an Interval, case-insensitively.
func ParseInterval(s string) (Interval, error) {
	i := Interval(strings.ToUpper(s))
	if !i.Valid() {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return i, nil
}

// RawTick is an opaque keyed record delivered by the feed source.
// Recognized keys are documented on bridge.Normalizer; the record is
// consumed and discarded after normalization.
type RawTick map[string]any

// Tick is a normalized price update. All price fields are plain decimal
// units; upstream scaled-integer conventions are resolved at
// normalization. Immutable once constructed.
type Tick struct {
	Symbol    string
	Token     uint32
	Timestamp time.Time
	LTP       float64
	Bid       float64
	Ask       float64
	BidQty    int64
	AskQty    int64
	Volume    int64
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Bar is a completed (or flushed) OHLCV aggregate over one time bucket.
// BucketStart is aligned to a multiple of IntervalSeconds since midnight
// of the tick's day.
type Bar struct {
	Symbol          string
	IntervalSeconds int
	BucketStart     time.Time
	Open            float64
	High            float64
	Low             float64
	Close           float64
	Volume          int64
	TickCount       int
}

// ContinuityReport summarizes gaps and duplicates detected in a merged
// historical series. Advisory only; it never blocks return of data.
type ContinuityReport struct {
	GapCount       int
	DuplicateCount int
}

// CandleSeries is a merged, de-duplicated, ascending candle series plus
// its continuity report.
type CandleSeries struct {
	Candles    []Candle
	Continuity ContinuityReport
}
