package broker

import (
	"context"
	"strings"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "zerodha-stream/internal/errors"
	"zerodha-stream/internal/models"
)

// ZerodhaClient implements HistoricalClient over Kite Connect.
type ZerodhaClient struct {
	client *kiteconnect.Client
}

// ZerodhaConfig holds Kite Connect credentials.
type ZerodhaConfig struct {
	APIKey      string
	AccessToken string
}

// NewZerodhaClient creates a Kite Connect historical client.
func NewZerodhaClient(cfg ZerodhaConfig) *ZerodhaClient {
	client := kiteconnect.New(cfg.APIKey)
	if cfg.AccessToken != "" {
		client.SetAccessToken(cfg.AccessToken)
	}
	return &ZerodhaClient{client: client}
}

// GetCandles fetches historical OHLCV data for one sub-range.
func (z *ZerodhaClient) GetCandles(ctx context.Context, req HistoricalRequest) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	from, to := req.From, req.To
	if req.Interval == models.IntervalOneDay {
		from, to = alignToSession(from, to)
	}

	data, err := z.client.GetHistoricalData(req.Token, kiteInterval(req.Interval), from, to, false, false)
	if err != nil {
		return nil, apperrors.NewBrokerError(classifyKiteError(err), "historical data request failed", err)
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    int64(d.Volume),
		}
	}

	return candles, nil
}

// alignToSession clamps day-interval range boundaries to market session
// times (09:15 open, 15:30 close).
func alignToSession(from, to time.Time) (time.Time, time.Time) {
	f := time.Date(from.Year(), from.Month(), from.Day(), 9, 15, 0, 0, from.Location())
	t := time.Date(to.Year(), to.Month(), to.Day(), 15, 30, 0, 0, to.Location())
	return f, t
}

// classifyKiteError maps a Kite Connect error onto one of the broker
// error codes. Kite error strings carry the exception class name, which
// is the most stable signal the SDK exposes.
func classifyKiteError(err error) string {
	msg := err.Error()
	for _, code := range []string{
		CodeTooManyRequests,
		CodeNetwork,
		CodeGatewayTimeout,
		CodeToken,
		CodeInput,
		CodeGeneral,
	} {
		if strings.Contains(msg, code) {
			return code
		}
	}
	if strings.Contains(strings.ToLower(msg), "timeout") {
		return CodeGatewayTimeout
	}
	if strings.Contains(strings.ToLower(msg), "too many requests") || strings.Contains(msg, "429") {
		return CodeTooManyRequests
	}
	return CodeGeneral
}

var _ HistoricalClient = (*ZerodhaClient)(nil)
