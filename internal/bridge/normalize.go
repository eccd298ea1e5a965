package bridge

import (
	"math"
	"strconv"
	"time"

	"zerodha-stream/internal/models"
)

// NormalizerConfig controls payload normalization.
type NormalizerConfig struct {
	// ScaleDivisor is applied to prices detected as scaled integers
	// (paise-style upstream convention).
	ScaleDivisor float64
	// AutoDetectScale enables the magnitude-and-integrality heuristic.
	// The heuristic can silently mis-scale genuinely low-priced
	// instruments quoted above the floor, so feeds that deliver decimal
	// units should disable it rather than rely on the floor.
	AutoDetectScale bool
}

// DefaultNormalizerConfig returns defaults matching the paise convention.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		ScaleDivisor:    100,
		AutoDetectScale: true,
	}
}

// scaledPriceFloor is the magnitude above which an integral price is
// assumed to be scaled. 10000 paise = 100 rupees.
const scaledPriceFloor = 10000

// Normalizer converts raw feed records into normalized ticks.
//
// Recognized keys: symbol, token, last_price/ltp, best_bid_price,
// best_ask_price, best_bid_qty, best_ask_qty, volume,
// exchange_timestamp/timestamp.
type Normalizer struct {
	cfg NormalizerConfig
	now func() time.Time
}

// NewNormalizer creates a normalizer with the given configuration.
func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	if cfg.ScaleDivisor <= 0 {
		cfg.ScaleDivisor = 100
	}
	return &Normalizer{cfg: cfg, now: time.Now}
}

// Normalize converts a raw record into a Tick. Returns false if the
// record lacks an instrument token; price fields that are absent come
// out as zero.
func (n *Normalizer) Normalize(raw models.RawTick) (models.Tick, bool) {
	token, ok := asUint32(raw["token"])
	if !ok {
		return models.Tick{}, false
	}

	symbol := "UNKNOWN"
	if s, ok := raw["symbol"].(string); ok && s != "" {
		symbol = s
	}

	ltp, hasLTP := asFloat(raw["last_price"])
	if !hasLTP {
		ltp, _ = asFloat(raw["ltp"])
	}
	bid, _ := asFloat(raw["best_bid_price"])
	ask, _ := asFloat(raw["best_ask_price"])
	bidQty, _ := asInt64(raw["best_bid_qty"])
	askQty, _ := asInt64(raw["best_ask_qty"])
	volume, _ := asInt64(raw["volume"])

	ts := n.timestamp(raw)

	return models.Tick{
		Symbol:    symbol,
		Token:     token,
		Timestamp: ts,
		LTP:       n.price(ltp),
		Bid:       n.price(bid),
		Ask:       n.price(ask),
		BidQty:    bidQty,
		AskQty:    askQty,
		Volume:    volume,
	}, true
}

// price rescales a value that looks like a scaled integer.
func (n *Normalizer) price(v float64) float64 {
	if !n.cfg.AutoDetectScale || v == 0 {
		return v
	}
	if v == math.Trunc(v) && math.Abs(v) >= scaledPriceFloor {
		return v / n.cfg.ScaleDivisor
	}
	return v
}

// timestamp resolves the tick time from exchange_timestamp or timestamp,
// accepting time.Time values, numeric epochs in seconds, milliseconds or
// microseconds (detected by magnitude) and common string layouts. Missing
// or unparseable values fall back to the current time.
func (n *Normalizer) timestamp(raw models.RawTick) time.Time {
	for _, key := range []string{"exchange_timestamp", "timestamp"} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if t, ok := parseTimestamp(v); ok {
			return t
		}
	}
	return n.now()
}

func parseTimestamp(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case time.Time:
		if tv.IsZero() {
			return time.Time{}, false
		}
		return tv, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, tv); err == nil {
				return t, true
			}
		}
		return time.Time{}, false
	}

	epoch, ok := asFloat(v)
	if !ok || epoch <= 0 {
		return time.Time{}, false
	}
	return fromEpoch(epoch), true
}

// fromEpoch maps a numeric epoch to a time by magnitude: values around
// 1e9 are seconds, 1e12 milliseconds, 1e15 microseconds.
func fromEpoch(v float64) time.Time {
	switch {
	case v >= 1e14: // microseconds
		return time.UnixMicro(int64(v))
	case v >= 1e11: // milliseconds
		return time.UnixMilli(int64(v))
	default: // seconds
		sec := int64(v)
		frac := v - float64(sec)
		return time.Unix(sec, int64(frac*float64(time.Second)))
	}
}

func asFloat(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case int:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case uint32:
		return float64(tv), true
	case uint64:
		return float64(tv), true
	case string:
		f, err := strconv.ParseFloat(tv, 64)
		return f, err == nil
	}
	return 0, false
}

func asInt64(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func asUint32(v any) (uint32, bool) {
	f, ok := asFloat(v)
	if !ok || f < 0 {
		return 0, false
	}
	return uint32(f), true
}
