// Package broker provides upstream broker integration interfaces and the
// Zerodha Kite Connect implementation. All vendor quirks live here; the
// rest of the pipeline only sees RawTick records and typed candles.
package broker

import (
	"context"
	"time"

	"zerodha-stream/internal/models"
)

// HistoricalRequest describes one historical candle fetch.
type HistoricalRequest struct {
	Token    int
	Exchange models.Exchange
	Interval models.Interval
	From     time.Time
	To       time.Time
}

// HistoricalClient fetches historical candle data from the upstream
// broker. Implementations return a *errors.BrokerError with a
// classifiable code for upstream failures.
type HistoricalClient interface {
	GetCandles(ctx context.Context, req HistoricalRequest) ([]models.Candle, error)
}

// Feed streams live market data. The adapter invokes the submit callback
// once per event from its own goroutine; the callback must be
// non-blocking (bridge.Submit satisfies this).
type Feed interface {
	Connect(ctx context.Context) error
	Close() error
	Subscribe(tokens []uint32) error
	RegisterSymbol(symbol string, token uint32)
	OnRawTick(submit func(models.RawTick))
	OnError(handler func(error))
}

// Broker error codes classified by the fetcher. The set mirrors the
// transient error classes the upstream is known to emit; anything else
// is terminal for the request.
const (
	CodeTooManyRequests = "TooManyRequests"
	CodeNetwork         = "NetworkException"
	CodeGatewayTimeout  = "GatewayTimeout"
	CodeGeneral         = "GeneralException"
	CodeInput           = "InputException"
	CodeToken           = "TokenException"
)

// kiteInterval maps our interval names onto Kite Connect interval
// strings.
func kiteInterval(iv models.Interval) string {
	switch iv {
	case models.IntervalOneMinute:
		return "minute"
	case models.IntervalThreeMinute:
		return "3minute"
	case models.IntervalFiveMinute:
		return "5minute"
	case models.IntervalTenMinute:
		return "10minute"
	case models.IntervalFifteenMinute:
		return "15minute"
	case models.IntervalThirtyMinute:
		return "30minute"
	case models.IntervalOneHour:
		return "60minute"
	case models.IntervalOneDay:
		return "day"
	default:
		return "day"
	}
}
