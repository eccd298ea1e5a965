package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodha-stream/internal/config"
	"zerodha-stream/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Store.DBPath = filepath.Join(t.TempDir(), "stream.db")
	cfg.Aggregation.IntervalsSeconds = []int{60}
	return cfg
}

func submitTick(a *App, symbol string, ts time.Time, price float64) {
	a.Bridge.Submit(models.RawTick{
		"token":              uint32(1),
		"symbol":             symbol,
		"last_price":         price,
		"exchange_timestamp": ts,
	})
}

func waitBroadcasts(t *testing.T, a *App, want uint64) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for a.Bridge.Stats().BroadcastCount < want {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d broadcasts", want)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestNewWithoutCredentials(t *testing.T) {
	a, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)

	assert.Nil(t, a.Feed, "no feed without an API key")
	assert.Nil(t, a.Fetcher)
	assert.NotNil(t, a.Bridge)
	assert.NotNil(t, a.Aggregator)
	assert.NotNil(t, a.Orders)
	assert.NotNil(t, a.Store)
	a.Store.Close()
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Orders.GTT = []config.GTTSeed{{
		Symbol:       "RELIANCE",
		TriggerPrice: 2500,
		LimitPrice:   2501,
		Quantity:     1,
		Side:         "SELL",
		Condition:    "GTE",
	}}

	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	base := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	submitTick(a, "RELIANCE", base, 2450)
	submitTick(a, "RELIANCE", base.Add(20*time.Second), 2505) // fires the seeded GTT
	submitTick(a, "RELIANCE", base.Add(70*time.Second), 2460) // rolls the 1m bucket
	waitBroadcasts(t, a, 3)

	a.Stop()

	// The seeded GTT fired exactly once on the way through.
	history := a.Orders.GTT.TriggeredHistory()
	require.Len(t, history, 1)
	assert.Equal(t, "RELIANCE", history[0].Symbol)

	// Two bars exist: one emitted on rollover, one flushed at Stop.
	assert.Equal(t, uint64(2), a.Aggregator.Stats().BarsEmitted)
	assert.Equal(t, 0, a.Aggregator.Stats().OpenBars)
}

func TestSeedOrdersRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Orders.Bracket = []config.BracketSeed{{
		Symbol:     "X",
		Side:       "BUY",
		Quantity:   1,
		EntryPrice: 100,
		StopLoss:   110, // above entry: invalid for BUY
		Target:     120,
	}}

	a, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer a.Stop()

	err = a.Start(context.Background())
	assert.Error(t, err)
}

func TestStopIsIdempotent(t *testing.T) {
	a, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	a.Stop()
	a.Stop()
}

func TestStartIsIdempotent(t *testing.T) {
	a, err := New(testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	a.Stop()
}
