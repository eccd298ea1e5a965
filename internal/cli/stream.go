package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zerodha-stream/internal/app"
	"zerodha-stream/internal/config"
)

func newStreamCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	var (
		statsInterval time.Duration
		metricsAddr   string
	)

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Run the live tick pipeline",
		Long: `Connects to the Kite ticker, subscribes to the configured symbols and
runs the full pipeline: queueing, normalization, bar aggregation and
conditional order evaluation. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := a.Start(ctx); err != nil {
				return err
			}
			output.Success("pipeline started, %d symbols subscribed", len(cfg.Feed.Symbols))

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Warn().Err(err).Msg("Metrics server stopped")
					}
				}()
				defer srv.Close()
				logger.Info().Str("addr", metricsAddr).Msg("Metrics endpoint listening")
			}

			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()

		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case <-ticker.C:
					s := a.Bridge.Stats()
					logger.Info().
						Uint64("received", s.TicksReceived).
						Uint64("dropped", s.TicksDropped).
						Uint64("invalid", s.TicksInvalid).
						Int("queue_len", s.QueueLen).
						Uint64("bars_emitted", a.Aggregator.Stats().BarsEmitted).
						Msg("pipeline stats")
				}
			}

			output.Warn("shutting down")
			a.Stop()

			printStats(output, a)
			return nil
		},
	}

	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 60*time.Second, "interval between periodic stats log lines")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (empty = disabled)")
	return cmd
}

func printStats(output *Output, a *app.App) {
	bs := a.Bridge.Stats()
	as := a.Aggregator.Stats()

	if output.IsJSON() {
		output.JSON(map[string]any{
			"bridge":     bs,
			"aggregator": as,
		})
		return
	}

	output.Header("Bridge")
	output.Field("ticks_received", "%d", bs.TicksReceived)
	output.Field("ticks_dropped", "%d", bs.TicksDropped)
	output.Field("ticks_invalid", "%d", bs.TicksInvalid)
	output.Field("broadcasts", "%d", bs.BroadcastCount)
	output.Header("Aggregator")
	output.Field("ticks_processed", "%d", as.TicksProcessed)
	output.Field("bars_emitted", "%d", as.BarsEmitted)
	output.Field("open_bars", "%d", as.OpenBars)
}
