// Package history implements chunked, retrying backfill of historical
// candle ranges from a rate-limited upstream source.
package history

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"zerodha-stream/internal/broker"
	apperrors "zerodha-stream/internal/errors"
	"zerodha-stream/internal/metrics"
	"zerodha-stream/internal/models"
	"zerodha-stream/internal/ratelimit"
)

// Config holds fetcher configuration.
type Config struct {
	// MaxRetries is the maximum attempts per sub-range request.
	MaxRetries int
	// BaseDelay seeds the exponential backoff between retries.
	BaseDelay time.Duration
	// ChunkPause is the pacing delay between chunk requests.
	ChunkPause time.Duration
	// RetryableCodes is the allow-list of transient upstream error codes.
	// Empty means the Kite-style defaults.
	RetryableCodes []string
	// CooldownCode is the retryable code that additionally arms a global
	// cooldown suppressing the next request across all callers.
	CooldownCode string
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		ChunkPause: 350 * time.Millisecond,
		RetryableCodes: []string{
			broker.CodeTooManyRequests,
			broker.CodeNetwork,
			broker.CodeGatewayTimeout,
		},
		CooldownCode: broker.CodeTooManyRequests,
	}
}

// Stats is a snapshot of fetcher counters.
type Stats struct {
	Requests     uint64
	Retries      uint64
	ChunksFailed uint64
	CandlesKept  uint64
}

// Fetcher downloads candle ranges with retry, adaptive backoff and a
// shared cooldown after rate-limit responses. Safe for concurrent
// callers; the cooldown deadline is shared across all of them.
type Fetcher struct {
	client  broker.HistoricalClient
	limiter *ratelimit.TokenBucket
	logger  zerolog.Logger
	cfg     Config

	retryable map[string]bool

	mu            sync.Mutex
	cooldownUntil time.Time
	stats         Stats
}

// NewFetcher creates a fetcher over the given client and rate limiter.
func NewFetcher(client broker.HistoricalClient, limiter *ratelimit.TokenBucket, cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if len(cfg.RetryableCodes) == 0 {
		cfg.RetryableCodes = DefaultConfig().RetryableCodes
	}
	if cfg.CooldownCode == "" {
		cfg.CooldownCode = DefaultConfig().CooldownCode
	}

	retryable := make(map[string]bool, len(cfg.RetryableCodes))
	for _, code := range cfg.RetryableCodes {
		retryable[code] = true
	}

	return &Fetcher{
		client:    client,
		limiter:   limiter,
		logger:    logger.With().Str("component", "history").Logger(),
		cfg:       cfg,
		retryable: retryable,
	}
}

// Fetch downloads one sub-range. Transient upstream failures are retried
// up to the configured bound; a malformed payload is treated as an empty
// result, not an error. Only exhausted retries and terminal upstream
// errors surface to the caller.
func (f *Fetcher) Fetch(ctx context.Context, req broker.HistoricalRequest) ([]models.Candle, error) {
	var lastErr error

	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if err := f.waitCooldown(ctx); err != nil {
			return nil, err
		}
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.stats.Requests++
		f.mu.Unlock()

		start := time.Now()
		raw, err := f.client.GetCandles(ctx, req)
		if err == nil {
			candles := sanitize(raw)
			f.mu.Lock()
			f.stats.CandlesKept += uint64(len(candles))
			f.mu.Unlock()

			f.logger.Debug().
				Int("token", req.Token).
				Str("interval", string(req.Interval)).
				Int("candles", len(candles)).
				Dur("duration", time.Since(start)).
				Msg("Fetched range")
			return candles, nil
		}

		lastErr = err
		code := errorCode(err)

		if !f.retryable[code] || attempt == f.cfg.MaxRetries {
			break
		}

		delay := f.retryDelay(code, attempt)
		if code == f.cfg.CooldownCode {
			f.armCooldown(delay)
		}
		f.mu.Lock()
		f.stats.Retries++
		f.mu.Unlock()
		metrics.HistoryRetries.Inc()

		f.logger.Warn().
			Str("code", code).
			Int("attempt", attempt).
			Int("max_attempts", f.cfg.MaxRetries).
			Dur("delay", delay).
			Int("token", req.Token).
			Msg("Transient upstream error, retrying")

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	f.logger.Error().Err(lastErr).Int("token", req.Token).Msg("Historical fetch failed")
	return nil, apperrors.Wrap(lastErr, "historical fetch")
}

// FetchChunked splits [from, to) into sequential sub-ranges, fetches each
// with pacing, merges the results (de-duplicated by timestamp keep-first,
// sorted ascending) and computes a continuity report. A non-empty partial
// result is still returned when some chunks fail; only all chunks failing
// surfaces an error.
func (f *Fetcher) FetchChunked(ctx context.Context, req broker.HistoricalRequest, chunkDays int) (models.CandleSeries, error) {
	recommended := recommendedChunkDays(req.Interval)
	if chunkDays <= 0 || chunkDays > recommended {
		chunkDays = recommended
	}

	var (
		merged   []models.Candle
		lastErr  error
		anyChunk bool
	)

	for from := req.From; from.Before(req.To); {
		to := from.AddDate(0, 0, chunkDays)
		if to.After(req.To) {
			to = req.To
		}

		chunkReq := req
		chunkReq.From = from
		chunkReq.To = to

		candles, err := f.Fetch(ctx, chunkReq)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return models.CandleSeries{}, ctx.Err()
			}
			lastErr = err
			f.mu.Lock()
			f.stats.ChunksFailed++
			f.mu.Unlock()
			metrics.HistoryChunksFailed.Inc()
			f.logger.Warn().Err(err).
				Time("from", from).
				Time("to", to).
				Msg("Chunk failed, continuing")
		case len(candles) == 0:
			f.mu.Lock()
			f.stats.ChunksFailed++
			f.mu.Unlock()
			metrics.HistoryChunksFailed.Inc()
			f.logger.Warn().
				Time("from", from).
				Time("to", to).
				Msg("Empty chunk response")
		default:
			merged = append(merged, candles...)
			anyChunk = true
		}

		from = to
		if from.Before(req.To) && f.cfg.ChunkPause > 0 {
			if err := sleep(ctx, f.cfg.ChunkPause); err != nil {
				return models.CandleSeries{}, err
			}
		}
	}

	if !anyChunk {
		if lastErr != nil {
			return models.CandleSeries{}, apperrors.Wrap(lastErr, "all chunks failed")
		}
		return models.CandleSeries{}, nil
	}

	series := mergeSeries(merged, req.Interval)
	if series.Continuity.GapCount > 0 {
		metrics.HistoryGaps.Add(float64(series.Continuity.GapCount))
		f.logger.Warn().
			Int("token", req.Token).
			Str("interval", string(req.Interval)).
			Int("gaps", series.Continuity.GapCount).
			Msg("Continuity gaps detected in merged series")
	}

	f.logger.Info().
		Int("token", req.Token).
		Int("candles", len(series.Candles)).
		Msg("Chunked fetch complete")

	return series, nil
}

// Stats returns a snapshot of the fetcher counters.
func (f *Fetcher) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// waitCooldown blocks until any shared cooldown deadline has passed.
func (f *Fetcher) waitCooldown(ctx context.Context) error {
	f.mu.Lock()
	remaining := time.Until(f.cooldownUntil)
	f.mu.Unlock()

	if remaining <= 0 {
		return nil
	}
	return sleep(ctx, remaining)
}

// armCooldown extends the shared cooldown deadline. All callers of this
// fetcher observe it, so a throttled upstream is not hammered by the
// next request from a different goroutine.
func (f *Fetcher) armCooldown(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	until := time.Now().Add(d)
	if until.After(f.cooldownUntil) {
		f.cooldownUntil = until
	}
}

// retryDelay computes the adaptive backoff: rate-limit responses get a
// heavier cooldown curve, other transient errors plain exponential
// backoff. Jitter avoids synchronized retries.
func (f *Fetcher) retryDelay(code string, attempt int) time.Duration {
	if code == f.cfg.CooldownCode {
		base := f.cfg.BaseDelay * 2
		if base < 2*time.Second {
			base = 2 * time.Second
		}
		delay := base << (attempt - 1)
		delay += time.Duration(rand.Int63n(int64(800*time.Millisecond))) + 200*time.Millisecond
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
		return delay
	}

	delay := f.cfg.BaseDelay << (attempt - 1)
	delay += time.Duration(rand.Int63n(int64(400 * time.Millisecond)))
	if delay > 15*time.Second {
		delay = 15 * time.Second
	}
	return delay
}

// sanitize drops candles with unusable timestamps or impossible price
// shapes. A payload that loses every candle comes back empty rather than
// failing the request.
func sanitize(candles []models.Candle) []models.Candle {
	out := candles[:0]
	for _, c := range candles {
		if c.Timestamp.IsZero() {
			continue
		}
		if c.Open < 0 || c.High < 0 || c.Low < 0 || c.Close < 0 {
			continue
		}
		if c.High < c.Low {
			continue
		}
		out = append(out, c)
	}
	return out
}

// mergeSeries sorts ascending, counts duplicates, de-duplicates by
// timestamp keep-first, and computes the continuity report. A gap is any
// inter-sample delta exceeding 1.5x the nominal interval.
func mergeSeries(candles []models.Candle, interval models.Interval) models.CandleSeries {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})

	var report models.ContinuityReport
	deduped := make([]models.Candle, 0, len(candles))
	for _, c := range candles {
		if n := len(deduped); n > 0 && c.Timestamp.Equal(deduped[n-1].Timestamp) {
			report.DuplicateCount++
			continue
		}
		deduped = append(deduped, c)
	}

	expected := time.Duration(interval.Seconds()) * time.Second
	if expected > 0 {
		threshold := expected + expected/2
		for i := 1; i < len(deduped); i++ {
			if deduped[i].Timestamp.Sub(deduped[i-1].Timestamp) > threshold {
				report.GapCount++
			}
		}
	}

	return models.CandleSeries{Candles: deduped, Continuity: report}
}

// recommendedChunkDays returns conservative per-interval chunk sizing:
// finer intervals get smaller chunks to reduce rate-limit pressure.
func recommendedChunkDays(interval models.Interval) int {
	switch interval {
	case models.IntervalOneMinute, models.IntervalThreeMinute, models.IntervalFiveMinute:
		return 1
	case models.IntervalTenMinute, models.IntervalFifteenMinute, models.IntervalThirtyMinute:
		return 3
	case models.IntervalOneHour:
		return 15
	default:
		return 30
	}
}

// errorCode extracts the broker error code, or "" for non-broker errors.
func errorCode(err error) string {
	var berr *apperrors.BrokerError
	if apperrors.As(err, &berr) {
		return berr.Code
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
