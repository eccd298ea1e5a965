// Package cli provides the command-line interface for the streaming
// pipeline.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zerodha-stream/internal/config"
	"zerodha-stream/internal/logging"
)

// Version information
const (
	Version = "0.1.0"
)

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "zstream",
		Short: "Zerodha Stream - real-time tick pipeline and historical backfill",
		Long: `Zerodha Stream ingests live market ticks from Zerodha Kite, aggregates
them into OHLCV bars at multiple intervals, and evaluates standing GTT and
bracket orders against every price update.

A companion backfill path downloads historical candle ranges in rate-limited,
retryable chunks with continuity validation.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/zerodha-stream)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newStreamCmd(cfg, logger))
	rootCmd.AddCommand(newBackfillCmd(cfg, logger))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
				return
			}
			output.Println("zstream " + Version)
		},
	}
}

func newConfigCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(cfg)
				return
			}
			output.Header("Feed")
			output.Field("queue_size", "%d", cfg.Feed.QueueSize)
			output.Field("price_scale_divisor", "%.0f", cfg.Feed.PriceScaleDivisor)
			output.Field("price_scale_auto", "%v", cfg.Feed.PriceScaleAuto)
			output.Field("symbols", "%d registered", len(cfg.Feed.Symbols))
			output.Header("Aggregation")
			output.Field("intervals_seconds", "%v", cfg.Aggregation.IntervalsSeconds)
			output.Header("Rate limit")
			output.Field("rate_per_second", "%.1f", cfg.RateLimit.RatePerSecond)
			output.Field("burst", "%d", cfg.RateLimit.Burst)
			output.Header("Backfill")
			output.Field("max_retries", "%d", cfg.Backfill.MaxRetries)
			output.Field("chunk_pause", "%s", cfg.Backfill.ChunkPause)
		},
	}
}
