// Package app is the composition root. It constructs the shared limiter,
// bridge, aggregator and order engines exactly once and owns their
// lifecycle, so nothing in the pipeline reaches for module-level
// singletons.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"zerodha-stream/internal/bars"
	"zerodha-stream/internal/bridge"
	"zerodha-stream/internal/broker"
	"zerodha-stream/internal/config"
	"zerodha-stream/internal/history"
	"zerodha-stream/internal/models"
	"zerodha-stream/internal/orders"
	"zerodha-stream/internal/ratelimit"
	"zerodha-stream/internal/store"
	"zerodha-stream/pkg/utils"
)

// App wires the pipeline together: feed -> bridge -> [aggregator, order
// engine] with persistence for completed bars and order events.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Limiter    *ratelimit.TokenBucket
	Bridge     *bridge.Bridge
	Aggregator *bars.Aggregator
	Orders     *orders.Engine
	Fetcher    *history.Fetcher
	Store      store.DataStore
	Feed       broker.Feed

	started bool
}

// New constructs the application context from configuration. The store
// and upstream clients are optional at this stage: commands that need
// them check for presence.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	a.Limiter = ratelimit.NewTokenBucket(cfg.RateLimit.RatePerSecond, cfg.RateLimit.Burst)

	a.Bridge = bridge.New(bridge.Config{
		QueueSize: cfg.Feed.QueueSize,
		Normalizer: bridge.NormalizerConfig{
			ScaleDivisor:    cfg.Feed.PriceScaleDivisor,
			AutoDetectScale: cfg.Feed.PriceScaleAuto,
		},
	}, logger)

	a.Aggregator = bars.New(cfg.Aggregation.IntervalsSeconds, logger)
	a.Orders = orders.NewEngine(logger)

	if cfg.Credentials.Zerodha.APIKey != "" {
		client := broker.NewZerodhaClient(broker.ZerodhaConfig{
			APIKey:      cfg.Credentials.Zerodha.APIKey,
			AccessToken: cfg.Credentials.Zerodha.AccessToken,
		})
		a.Fetcher = history.NewFetcher(client, a.Limiter, history.Config{
			MaxRetries: cfg.Backfill.MaxRetries,
			BaseDelay:  cfg.Backfill.BaseDelay,
			ChunkPause: cfg.Backfill.ChunkPause,
		}, logger)

		a.Feed = broker.NewKiteFeed(cfg.Credentials.Zerodha.APIKey, cfg.Credentials.Zerodha.AccessToken)
		logger.Debug().Msg("Zerodha clients initialized")
	}

	dataStore, err := store.NewSQLiteStore(cfg.Store.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, persistence disabled")
	} else {
		a.Store = dataStore
	}

	return a, nil
}

// Start wires subscribers, seeds standing orders, starts the consumer
// loop and connects the live feed.
func (a *App) Start(ctx context.Context) error {
	if a.started {
		return nil
	}
	a.started = true

	a.Bridge.SubscribeFunc(a.Aggregator.OnTick)
	a.Bridge.Subscribe(a.Orders)

	if a.Store != nil {
		a.Aggregator.OnCompletedBar(func(bar models.Bar) {
			if err := a.Store.SaveBar(context.Background(), bar); err != nil {
				a.Logger.Warn().Err(err).Msg("Failed to persist bar")
			}
		})
		a.Orders.SetEventHandler(func(event models.OrderEvent) {
			if err := a.Store.SaveOrderEvent(context.Background(), event); err != nil {
				a.Logger.Warn().Err(err).Msg("Failed to persist order event")
			}
		})
	}

	if err := a.seedOrders(); err != nil {
		return err
	}

	a.Bridge.Start(ctx)

	if a.Feed != nil {
		a.Feed.OnRawTick(a.Bridge.Submit)
		a.Feed.OnError(func(err error) {
			a.Logger.Warn().Err(err).Msg("Feed error")
		})

		connectCfg := utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		}
		if err := utils.Retry(ctx, connectCfg, func() error {
			return a.Feed.Connect(ctx)
		}); err != nil {
			return err
		}

		tokens := make([]uint32, 0, len(a.Config.Feed.Symbols))
		for symbol, token := range a.Config.Feed.Symbols {
			a.Feed.RegisterSymbol(symbol, token)
			tokens = append(tokens, token)
		}
		if len(tokens) > 0 {
			if err := a.Feed.Subscribe(tokens); err != nil {
				return err
			}
		}
	}

	a.Logger.Info().Msg("Pipeline started")
	return nil
}

// seedOrders places the standing conditional orders declared in config.
func (a *App) seedOrders() error {
	for _, seed := range a.Config.Orders.GTT {
		_, err := a.Orders.GTT.Place(
			seed.Symbol,
			seed.TriggerPrice,
			seed.LimitPrice,
			seed.Quantity,
			models.OrderSide(seed.Side),
			models.GTTCondition(seed.Condition),
		)
		if err != nil {
			return err
		}
	}

	for _, seed := range a.Config.Orders.Bracket {
		_, err := a.Orders.Bracket.Place(
			seed.Symbol,
			models.OrderSide(seed.Side),
			seed.Quantity,
			seed.EntryPrice,
			seed.StopLoss,
			seed.Target,
			models.OrderType(seed.OrderType),
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// Stop shuts the pipeline down: feed first so no new ticks arrive, then
// the consumer loop, then a flush so no partially-built bar is lost.
func (a *App) Stop() {
	if !a.started {
		return
	}
	a.started = false

	if a.Feed != nil {
		a.Feed.Close()
	}
	a.Bridge.Stop()
	a.Aggregator.Flush()

	if a.Store != nil {
		a.Store.Close()
	}
	a.Logger.Info().Msg("Pipeline stopped")
}
