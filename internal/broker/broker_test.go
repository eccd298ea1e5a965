package broker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	kitemodels "github.com/zerodha/gokiteconnect/v4/models"

	"zerodha-stream/internal/models"
)

func TestKiteIntervalMapping(t *testing.T) {
	tests := []struct {
		interval models.Interval
		want     string
	}{
		{models.IntervalOneMinute, "minute"},
		{models.IntervalThreeMinute, "3minute"},
		{models.IntervalFiveMinute, "5minute"},
		{models.IntervalTenMinute, "10minute"},
		{models.IntervalFifteenMinute, "15minute"},
		{models.IntervalThirtyMinute, "30minute"},
		{models.IntervalOneHour, "60minute"},
		{models.IntervalOneDay, "day"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, kiteInterval(tt.interval), "interval %s", tt.interval)
	}
}

func TestClassifyKiteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"explicit class name", errors.New("NetworkException: connection reset"), CodeNetwork},
		{"throttle class", errors.New("TooManyRequests"), CodeTooManyRequests},
		{"http 429", errors.New("unexpected status 429"), CodeTooManyRequests},
		{"timeout text", errors.New("request timeout exceeded"), CodeGatewayTimeout},
		{"token expiry", errors.New("TokenException: api_key or access_token invalid"), CodeToken},
		{"bad input", errors.New("InputException: invalid to date"), CodeInput},
		{"anything else", errors.New("boom"), CodeGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyKiteError(tt.err))
		})
	}
}

func TestAlignToSession(t *testing.T) {
	from := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)

	f, to2 := alignToSession(from, to)
	assert.Equal(t, time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC), f)
	assert.Equal(t, time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC), to2)
}

func TestRawTickFromKite(t *testing.T) {
	ts := time.Date(2024, 6, 3, 9, 15, 30, 0, time.UTC)
	tick := kitemodels.Tick{
		InstrumentToken: 738561,
		LastPrice:       2450.50,
		VolumeTraded:    150000,
		Timestamp:       kitemodels.Time{Time: ts},
	}
	tick.Depth.Buy[0] = kitemodels.DepthItem{Price: 2450.25, Quantity: 100}
	tick.Depth.Sell[0] = kitemodels.DepthItem{Price: 2450.75, Quantity: 120}

	raw := rawTickFromKite(tick, "RELIANCE")

	assert.Equal(t, uint32(738561), raw["token"])
	assert.Equal(t, 2450.50, raw["last_price"])
	assert.Equal(t, int64(150000), raw["volume"])
	assert.Equal(t, "RELIANCE", raw["symbol"])
	assert.Equal(t, ts, raw["exchange_timestamp"])
	assert.Equal(t, 2450.25, raw["best_bid_price"])
	assert.Equal(t, int64(100), raw["best_bid_qty"])
	assert.Equal(t, 2450.75, raw["best_ask_price"])
	assert.Equal(t, int64(120), raw["best_ask_qty"])
}

func TestRawTickFromKiteOmitsMissingFields(t *testing.T) {
	tick := kitemodels.Tick{
		InstrumentToken: 5633,
		LastPrice:       104.35,
	}

	raw := rawTickFromKite(tick, "")

	_, hasSymbol := raw["symbol"]
	assert.False(t, hasSymbol)
	_, hasTS := raw["exchange_timestamp"]
	assert.False(t, hasTS)
	_, hasBid := raw["best_bid_price"]
	assert.False(t, hasBid)
}
