package orders

import (
	"time"

	"github.com/rs/zerolog"

	apperrors "zerodha-stream/internal/errors"
	"zerodha-stream/internal/logging"
	"zerodha-stream/internal/metrics"
	"zerodha-stream/internal/models"
)

// Exit reasons recorded on bracket orders.
const (
	ExitReasonTarget   = "TARGET"
	ExitReasonStopLoss = "STOP_LOSS"
)

// BracketEngine manages bracket orders (entry + stop-loss + target with
// OCO exits). Driven from the single consumer loop like GTTEngine.
type BracketEngine struct {
	orders    map[string]*models.BracketOrder
	completed []models.BracketOrder
	handler   EventHandler
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBracketEngine creates a bracket engine.
func NewBracketEngine(logger zerolog.Logger) *BracketEngine {
	return &BracketEngine{
		orders: make(map[string]*models.BracketOrder),
		logger: logger.With().Str("component", "bracket").Logger(),
		now:    time.Now,
	}
}

// SetEventHandler registers the order-submission callback.
func (e *BracketEngine) SetEventHandler(h EventHandler) {
	e.handler = h
}

// Place creates a bracket order. Configurations with the stop-loss or
// target on the wrong side of the entry price are rejected here and never
// enter the state machine. A MARKET bracket enters immediately at the
// entry price.
func (e *BracketEngine) Place(symbol string, side models.OrderSide, quantity int, entryPrice, stopLoss, target float64, orderType models.OrderType) (string, error) {
	if symbol == "" {
		return "", apperrors.NewValidationError("symbol", symbol, "required")
	}
	if quantity <= 0 {
		return "", apperrors.NewValidationError("quantity", quantity, "must be positive")
	}
	if entryPrice <= 0 {
		return "", apperrors.NewValidationError("entry_price", entryPrice, "must be positive")
	}
	if orderType == "" {
		orderType = models.OrderTypeLimit
	}

	switch side {
	case models.OrderSideBuy:
		if stopLoss >= entryPrice {
			return "", apperrors.NewValidationError("stop_loss", stopLoss, "BUY bracket requires stop-loss below entry")
		}
		if target <= entryPrice {
			return "", apperrors.NewValidationError("target", target, "BUY bracket requires target above entry")
		}
	case models.OrderSideSell:
		if stopLoss <= entryPrice {
			return "", apperrors.NewValidationError("stop_loss", stopLoss, "SELL bracket requires stop-loss above entry")
		}
		if target >= entryPrice {
			return "", apperrors.NewValidationError("target", target, "SELL bracket requires target below entry")
		}
	default:
		return "", apperrors.NewValidationError("side", side, "must be BUY or SELL")
	}

	order := &models.BracketOrder{
		ID:         models.NewBracketOrderID(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		StopLoss:   stopLoss,
		Target:     target,
		OrderType:  orderType,
		Status:     models.BracketStatusPending,
		CreatedAt:  e.now(),
	}
	e.orders[order.ID] = order

	e.logger.Info().
		Str("order_id", order.ID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("entry", entryPrice).
		Float64("stop_loss", stopLoss).
		Float64("target", target).
		Int("quantity", quantity).
		Msg("Bracket placed")

	if orderType == models.OrderTypeMarket {
		e.fillEntry(order, entryPrice)
	}

	return order.ID, nil
}

// CheckPrices evaluates all bracket orders for a symbol against the
// current price, handling both entry and exit transitions.
func (e *BracketEngine) CheckPrices(symbol string, price float64) {
	for _, order := range e.orders {
		if order.Symbol != symbol {
			continue
		}

		switch order.Status {
		case models.BracketStatusPending:
			if entryMet(order, price) {
				e.fillEntry(order, price)
			}
		case models.BracketStatusEntered:
			if reason := exitReason(order, price); reason != "" {
				e.fillExit(order, price, reason)
			}
		}
	}
}

// entryMet reports whether a limit entry has been reached in the
// favorable direction.
func entryMet(order *models.BracketOrder, price float64) bool {
	if order.Side == models.OrderSideBuy {
		return price <= order.EntryPrice
	}
	return price >= order.EntryPrice
}

// exitReason returns the exit trigger for an ENTERED order, or "".
func exitReason(order *models.BracketOrder, price float64) string {
	if order.Side == models.OrderSideBuy {
		if price <= order.StopLoss {
			return ExitReasonStopLoss
		}
		if price >= order.Target {
			return ExitReasonTarget
		}
		return ""
	}
	if price >= order.StopLoss {
		return ExitReasonStopLoss
	}
	if price <= order.Target {
		return ExitReasonTarget
	}
	return ""
}

func (e *BracketEngine) fillEntry(order *models.BracketOrder, price float64) {
	order.Status = models.BracketStatusEntered
	order.EntryFillPrice = price
	order.EnteredAt = e.now()
	metrics.OrdersTriggered.WithLabelValues("BRACKET_ENTRY").Inc()

	logging.LogOrderEvent(e.logger, "BRACKET_ENTRY", order.ID, order.Symbol, string(order.Side), order.Quantity, price)

	if e.handler != nil {
		e.handler(models.OrderEvent{
			Symbol:             order.Symbol,
			Side:               order.Side,
			Quantity:           order.Quantity,
			Price:              price,
			OrderType:          models.OrderTypeMarket,
			SourceTag:          "BRACKET_ENTRY",
			OriginatingOrderID: order.ID,
			Timestamp:          order.EnteredAt,
		})
	}
}

func (e *BracketEngine) fillExit(order *models.BracketOrder, price float64, reason string) {
	order.ExitedAt = e.now()
	order.ExitReason = reason

	// Realized P&L: (exit - entry) * qty, sign flipped for shorts.
	direction := 1.0
	if order.Side == models.OrderSideSell {
		direction = -1.0
	}
	order.PnL = (price - order.EntryFillPrice) * float64(order.Quantity) * direction

	if reason == ExitReasonTarget {
		order.Status = models.BracketStatusCompleted
	} else {
		order.Status = models.BracketStatusStoppedOut
	}
	metrics.OrdersTriggered.WithLabelValues("BRACKET_" + reason).Inc()

	e.logger.Info().
		Str("order_id", order.ID).
		Str("reason", reason).
		Float64("exit_price", price).
		Float64("pnl", order.PnL).
		Msg("Bracket exit")

	if e.handler != nil {
		e.handler(models.OrderEvent{
			Symbol:             order.Symbol,
			Side:               order.Side.Opposite(),
			Quantity:           order.Quantity,
			Price:              price,
			OrderType:          models.OrderTypeMarket,
			SourceTag:          "BRACKET_" + reason,
			OriginatingOrderID: order.ID,
			Timestamp:          order.ExitedAt,
		})
	}

	e.completed = append(e.completed, *order)
}

// Cancel cancels a bracket order. Only PENDING orders can be cancelled;
// an entered position must run to its stop or target.
func (e *BracketEngine) Cancel(orderID string) bool {
	order, ok := e.orders[orderID]
	if !ok {
		return false
	}
	if order.Status != models.BracketStatusPending {
		e.logger.Warn().
			Str("order_id", orderID).
			Str("status", string(order.Status)).
			Msg("Cannot cancel bracket")
		return false
	}
	order.Status = models.BracketStatusCancelled
	e.logger.Info().Str("order_id", orderID).Msg("Bracket cancelled")
	return true
}

// ModifyStopLoss trails the stop of an ENTERED order. The stop may only
// move in the position's favor; a loosening request is rejected as a
// no-op.
func (e *BracketEngine) ModifyStopLoss(orderID string, newStop float64) bool {
	order, ok := e.orders[orderID]
	if !ok || order.Status != models.BracketStatusEntered {
		return false
	}

	tightens := (order.Side == models.OrderSideBuy && newStop > order.StopLoss) ||
		(order.Side == models.OrderSideSell && newStop < order.StopLoss)
	if !tightens {
		return false
	}

	order.StopLoss = newStop
	e.logger.Info().
		Str("order_id", orderID).
		Float64("stop_loss", newStop).
		Msg("Bracket stop trailed")
	return true
}

// ActiveOrders returns PENDING and ENTERED orders, optionally filtered by
// symbol.
func (e *BracketEngine) ActiveOrders(symbol string) []models.BracketOrder {
	var active []models.BracketOrder
	for _, order := range e.orders {
		if order.Status.Terminal() {
			continue
		}
		if symbol == "" || order.Symbol == symbol {
			active = append(active, *order)
		}
	}
	return active
}

// CompletedOrders returns up to limit most recent completed orders.
func (e *BracketEngine) CompletedOrders(limit int) []models.BracketOrder {
	if limit <= 0 || limit > len(e.completed) {
		limit = len(e.completed)
	}
	out := make([]models.BracketOrder, limit)
	copy(out, e.completed[len(e.completed)-limit:])
	return out
}
