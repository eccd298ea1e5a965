package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zerodha-stream/internal/app"
	"zerodha-stream/internal/broker"
	"zerodha-stream/internal/config"
	apperrors "zerodha-stream/internal/errors"
	"zerodha-stream/internal/models"
)

func newBackfillCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	var (
		symbol    string
		interval  string
		fromStr   string
		toStr     string
		chunkDays int
		exchange  string
		noSave    bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Download a historical candle range",
		Long: `Fetches historical candles for one symbol over a date range, split into
interval-appropriate chunks with rate limiting and retries. Results are
deduplicated, checked for gaps and written to the local store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			iv, err := models.ParseInterval(interval)
			if err != nil {
				return err
			}
			from, err := parseDate(fromStr)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			to, err := parseDate(toStr)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			if !to.After(from) {
				return fmt.Errorf("--to must be after --from")
			}

			symbol = strings.ToUpper(symbol)
			token, ok := cfg.Feed.Symbols[symbol]
			if !ok {
				return fmt.Errorf("symbol %q not registered in [feed.symbols]", symbol)
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if a.Store != nil {
					a.Store.Close()
				}
			}()
			if a.Fetcher == nil {
				return apperrors.ErrNotAuthenticated
			}

			req := broker.HistoricalRequest{
				Token:    int(token),
				Exchange: models.Exchange(exchange),
				Interval: iv,
				From:     from,
				To:       to,
			}

			start := time.Now()
			series, err := a.Fetcher.FetchChunked(cmd.Context(), req, chunkDays)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			saved := 0
			if !noSave && a.Store != nil {
				saved, err = a.Store.SaveCandles(context.Background(), symbol, iv, series.Candles)
				if err != nil {
					return err
				}
			}

			stats := a.Fetcher.Stats()
			if output.IsJSON() {
				output.JSON(map[string]any{
					"symbol":     symbol,
					"interval":   iv,
					"candles":    len(series.Candles),
					"saved":      saved,
					"continuity": series.Continuity,
					"stats":      stats,
					"elapsed":    elapsed.String(),
				})
				return nil
			}

			output.Success("fetched %d candles for %s %s in %s", len(series.Candles), symbol, iv, elapsed.Round(time.Millisecond))
			output.Header("Continuity")
			output.Field("gaps", "%d", series.Continuity.GapCount)
			output.Field("duplicates", "%d", series.Continuity.DuplicateCount)
			output.Header("Requests")
			output.Field("requests", "%d", stats.Requests)
			output.Field("retries", "%d", stats.Retries)
			output.Field("chunks_failed", "%d", stats.ChunksFailed)
			if !noSave {
				output.Field("saved", "%d new rows", saved)
			}
			if series.Continuity.GapCount > 0 {
				output.Warn("series has %d gaps larger than 1.5x the interval", series.Continuity.GapCount)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&symbol, "symbol", "s", "", "trading symbol (must be registered in config)")
	cmd.Flags().StringVarP(&interval, "interval", "i", "ONE_MINUTE", "candle interval (ONE_MINUTE..ONE_DAY)")
	cmd.Flags().StringVar(&fromStr, "from", "", "range start, YYYY-MM-DD or RFC3339")
	cmd.Flags().StringVar(&toStr, "to", "", "range end, YYYY-MM-DD or RFC3339")
	cmd.Flags().IntVar(&chunkDays, "chunk-days", 0, "days per request chunk (0 = interval default)")
	cmd.Flags().StringVar(&exchange, "exchange", "NSE", "exchange segment")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "skip writing candles to the store")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
