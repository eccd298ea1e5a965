// Package orders evaluates standing conditional orders against the
// normalized tick stream: GTT trigger orders (with OCO linking) and
// bracket orders.
package orders

import (
	"time"

	"github.com/rs/zerolog"

	apperrors "zerodha-stream/internal/errors"
	"zerodha-stream/internal/logging"
	"zerodha-stream/internal/metrics"
	"zerodha-stream/internal/models"
)

// EventHandler receives order-submission events when a conditional order
// fires.
type EventHandler func(models.OrderEvent)

// GTTEngine manages Good-Till-Triggered orders. All mutation happens from
// the single consumer loop driving CheckTriggers, so no locking is needed
// beyond that discipline.
type GTTEngine struct {
	orders   map[string]*models.GTTOrder
	ocoPairs map[string]string // order ID -> linked partner ID
	history  []models.GTTOrder
	handler  EventHandler
	logger   zerolog.Logger
	now      func() time.Time
}

// NewGTTEngine creates a GTT engine.
func NewGTTEngine(logger zerolog.Logger) *GTTEngine {
	return &GTTEngine{
		orders:   make(map[string]*models.GTTOrder),
		ocoPairs: make(map[string]string),
		logger:   logger.With().Str("component", "gtt").Logger(),
		now:      time.Now,
	}
}

// SetEventHandler registers the order-submission callback.
func (e *GTTEngine) SetEventHandler(h EventHandler) {
	e.handler = h
}

// Place creates a GTT order and returns its ID.
func (e *GTTEngine) Place(symbol string, triggerPrice, limitPrice float64, quantity int, side models.OrderSide, condition models.GTTCondition) (string, error) {
	if symbol == "" {
		return "", apperrors.NewValidationError("symbol", symbol, "required")
	}
	if triggerPrice <= 0 {
		return "", apperrors.NewValidationError("trigger_price", triggerPrice, "must be positive")
	}
	if quantity <= 0 {
		return "", apperrors.NewValidationError("quantity", quantity, "must be positive")
	}
	if condition != models.GTTConditionGTE && condition != models.GTTConditionLTE {
		return "", apperrors.NewValidationError("condition", condition, "must be GTE or LTE")
	}
	if side != models.OrderSideBuy && side != models.OrderSideSell {
		return "", apperrors.NewValidationError("side", side, "must be BUY or SELL")
	}

	order := &models.GTTOrder{
		ID:           models.NewGTTOrderID(),
		Symbol:       symbol,
		TriggerPrice: triggerPrice,
		LimitPrice:   limitPrice,
		Quantity:     quantity,
		Side:         side,
		Condition:    condition,
		Status:       models.GTTStatusActive,
		CreatedAt:    e.now(),
	}
	e.orders[order.ID] = order

	e.logger.Info().
		Str("order_id", order.ID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("condition", string(condition)).
		Float64("trigger", triggerPrice).
		Float64("limit", limitPrice).
		Int("quantity", quantity).
		Msg("GTT placed")

	return order.ID, nil
}

// PlaceOCO places a target/stop-loss exit pair where firing either leg
// cancels the other. Returns (targetID, stopLossID).
func (e *GTTEngine) PlaceOCO(symbol string, targetPrice, stopLossPrice float64, quantity int) (string, string, error) {
	targetID, err := e.Place(symbol, targetPrice, targetPrice, quantity, models.OrderSideSell, models.GTTConditionGTE)
	if err != nil {
		return "", "", err
	}
	slID, err := e.Place(symbol, stopLossPrice, stopLossPrice, quantity, models.OrderSideSell, models.GTTConditionLTE)
	if err != nil {
		e.Cancel(targetID)
		return "", "", err
	}

	e.ocoPairs[targetID] = slID
	e.ocoPairs[slID] = targetID

	e.logger.Info().
		Str("target_id", targetID).
		Str("stop_id", slID).
		Str("symbol", symbol).
		Msg("OCO pair placed")

	return targetID, slID, nil
}

// Cancel cancels an ACTIVE order. Returns false if the order does not
// exist or has already reached a terminal state.
func (e *GTTEngine) Cancel(orderID string) bool {
	order, ok := e.orders[orderID]
	if !ok || order.Status != models.GTTStatusActive {
		return false
	}
	order.Status = models.GTTStatusCancelled
	e.logger.Info().Str("order_id", orderID).Msg("GTT cancelled")
	return true
}

// CheckTriggers evaluates every ACTIVE order for the symbol against the
// current price. A fired order is marked TRIGGERED (terminal, no
// re-arming), its submission event is emitted, and its OCO partner, if
// any, is cancelled without an event of its own.
func (e *GTTEngine) CheckTriggers(symbol string, price float64) {
	for id, order := range e.orders {
		if order.Symbol != symbol || order.Status != models.GTTStatusActive {
			continue
		}
		if !triggered(order, price) {
			continue
		}

		order.Status = models.GTTStatusTriggered
		order.TriggeredAt = e.now()
		e.history = append(e.history, *order)
		metrics.OrdersTriggered.WithLabelValues("GTT").Inc()

		logging.LogOrderEvent(e.logger, "GTT", order.ID, symbol, string(order.Side), order.Quantity, price)

		if e.handler != nil {
			e.handler(models.OrderEvent{
				Symbol:             order.Symbol,
				Side:               order.Side,
				Quantity:           order.Quantity,
				Price:              order.LimitPrice,
				OrderType:          models.OrderTypeLimit,
				SourceTag:          "GTT",
				OriginatingOrderID: order.ID,
				Timestamp:          order.TriggeredAt,
			})
		}

		if partnerID, ok := e.ocoPairs[id]; ok {
			if e.Cancel(partnerID) {
				e.logger.Info().
					Str("order_id", id).
					Str("partner_id", partnerID).
					Msg("OCO partner cancelled")
			}
		}
	}
}

func triggered(order *models.GTTOrder, price float64) bool {
	switch order.Condition {
	case models.GTTConditionGTE:
		return price >= order.TriggerPrice
	case models.GTTConditionLTE:
		return price <= order.TriggerPrice
	}
	return false
}

// ActiveOrders returns ACTIVE orders, optionally filtered by symbol
// (empty symbol means all).
func (e *GTTEngine) ActiveOrders(symbol string) []models.GTTOrder {
	var active []models.GTTOrder
	for _, order := range e.orders {
		if order.Status == models.GTTStatusActive && (symbol == "" || order.Symbol == symbol) {
			active = append(active, *order)
		}
	}
	return active
}

// AllOrders returns every order regardless of status.
func (e *GTTEngine) AllOrders() []models.GTTOrder {
	all := make([]models.GTTOrder, 0, len(e.orders))
	for _, order := range e.orders {
		all = append(all, *order)
	}
	return all
}

// TriggeredHistory returns the orders that have fired, in firing order.
func (e *GTTEngine) TriggeredHistory() []models.GTTOrder {
	out := make([]models.GTTOrder, len(e.history))
	copy(out, e.history)
	return out
}
