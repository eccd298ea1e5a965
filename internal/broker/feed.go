package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	kitemodels "github.com/zerodha/gokiteconnect/v4/models"
	kiteticker "github.com/zerodha/gokiteconnect/v4/ticker"

	"zerodha-stream/internal/models"
)

// KiteFeed adapts the Kite WebSocket ticker into the Feed interface.
// This is the only code aware of the vendor callback signatures; each
// vendor tick becomes one non-blocking submit of a RawTick record.
type KiteFeed struct {
	apiKey      string
	accessToken string
	ticker      *kiteticker.Ticker

	mu           sync.RWMutex
	connected    bool
	subscribed   map[uint32]struct{}
	tokenSymbols map[uint32]string
	submit       func(models.RawTick)
	onError      func(error)

	writeMu sync.Mutex // protects websocket writes
}

// NewKiteFeed creates a feed over the Kite WebSocket API.
func NewKiteFeed(apiKey, accessToken string) *KiteFeed {
	return &KiteFeed{
		apiKey:       apiKey,
		accessToken:  accessToken,
		subscribed:   make(map[uint32]struct{}),
		tokenSymbols: make(map[uint32]string),
	}
}

// RegisterSymbol maps an instrument token to its trading symbol so
// normalized ticks carry a readable symbol.
func (f *KiteFeed) RegisterSymbol(symbol string, token uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenSymbols[token] = symbol
}

// OnRawTick sets the submit callback invoked once per vendor tick.
func (f *KiteFeed) OnRawTick(submit func(models.RawTick)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submit = submit
}

// OnError sets the error handler.
func (f *KiteFeed) OnError(handler func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = handler
}

// Connect establishes the WebSocket connection and blocks until it is up
// or the context expires. Reconnection afterwards is handled by the
// vendor ticker.
func (f *KiteFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	if f.connected {
		f.mu.Unlock()
		return nil
	}
	f.ticker = kiteticker.New(f.apiKey, f.accessToken)
	f.mu.Unlock()

	connectedCh := make(chan struct{}, 1)

	f.ticker.OnConnect(func() {
		f.mu.Lock()
		f.connected = true
		f.mu.Unlock()

		select {
		case connectedCh <- struct{}{}:
		default:
		}

		f.resubscribe()
	})

	f.ticker.OnClose(func(code int, reason string) {
		f.mu.Lock()
		f.connected = false
		f.mu.Unlock()
	})

	f.ticker.OnError(func(err error) {
		f.mu.RLock()
		handler := f.onError
		f.mu.RUnlock()
		if handler != nil {
			handler(err)
		}
	})

	f.ticker.OnTick(func(tick kitemodels.Tick) {
		f.mu.RLock()
		submit := f.submit
		symbol := f.tokenSymbols[tick.InstrumentToken]
		f.mu.RUnlock()
		if submit == nil {
			return
		}
		submit(rawTickFromKite(tick, symbol))
	})

	go f.ticker.Serve()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-connectedCh:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("feed connection timeout")
	}
}

// Close shuts down the WebSocket connection.
func (f *KiteFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ticker != nil {
		f.ticker.Close()
		f.connected = false
	}
	return nil
}

// Subscribe subscribes instrument tokens in full mode.
func (f *KiteFeed) Subscribe(tokens []uint32) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return fmt.Errorf("not connected")
	}
	for _, token := range tokens {
		f.subscribed[token] = struct{}{}
	}
	f.mu.Unlock()

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if err := f.ticker.Subscribe(tokens); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := f.ticker.SetMode(kiteticker.ModeFull, tokens); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}
	return nil
}

// resubscribe restores subscriptions after a reconnect.
func (f *KiteFeed) resubscribe() {
	f.mu.RLock()
	tokens := make([]uint32, 0, len(f.subscribed))
	for token := range f.subscribed {
		tokens = append(tokens, token)
	}
	f.mu.RUnlock()

	if len(tokens) == 0 {
		return
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.ticker.Subscribe(tokens)
	f.ticker.SetMode(kiteticker.ModeFull, tokens)
}

// rawTickFromKite flattens a vendor tick into the feed-record shape the
// bridge accepts. Kite delivers prices in natural decimal units already,
// so the bridge's scale heuristic leaves them untouched.
func rawTickFromKite(tick kitemodels.Tick, symbol string) models.RawTick {
	raw := models.RawTick{
		"token":      tick.InstrumentToken,
		"last_price": tick.LastPrice,
		"volume":     int64(tick.VolumeTraded),
	}
	if symbol != "" {
		raw["symbol"] = symbol
	}
	if !tick.Timestamp.Time.IsZero() {
		raw["exchange_timestamp"] = tick.Timestamp.Time
	}
	if best := tick.Depth.Buy[0]; best.Price > 0 {
		raw["best_bid_price"] = best.Price
		raw["best_bid_qty"] = int64(best.Quantity)
	}
	if best := tick.Depth.Sell[0]; best.Price > 0 {
		raw["best_ask_price"] = best.Price
		raw["best_ask_qty"] = int64(best.Quantity)
	}
	return raw
}

var _ Feed = (*KiteFeed)(nil)
