package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// GTTCondition determines the direction of a GTT trigger.
type GTTCondition string

const (
	// GTTConditionGTE fires when price >= trigger price.
	GTTConditionGTE GTTCondition = "GTE"
	// GTTConditionLTE fires when price <= trigger price.
	GTTConditionLTE GTTCondition = "LTE"
)

// GTTStatus is the lifecycle state of a GTT order.
type GTTStatus string

const (
	GTTStatusActive    GTTStatus = "ACTIVE"
	GTTStatusTriggered GTTStatus = "TRIGGERED"
	GTTStatusCancelled GTTStatus = "CANCELLED"
)

// GTTOrder is a standing Good-Till-Triggered order. It is mutated only
// by the engine evaluating ticks for its symbol and is terminal once
// TRIGGERED or CANCELLED.
type GTTOrder struct {
	ID           string
	Symbol       string
	TriggerPrice float64
	LimitPrice   float64
	Quantity     int
	Side         OrderSide
	Condition    GTTCondition
	Status       GTTStatus
	CreatedAt    time.Time
	TriggeredAt  time.Time
}

// NewGTTOrderID generates a GTT order identifier.
func NewGTTOrderID() string {
	return "GTT-" + strings.ToUpper(uuid.NewString()[:8])
}

// BracketStatus is the lifecycle state of a bracket order.
type BracketStatus string

const (
	BracketStatusPending    BracketStatus = "PENDING"
	BracketStatusEntered    BracketStatus = "ENTERED"
	BracketStatusCompleted  BracketStatus = "COMPLETED"
	BracketStatusStoppedOut BracketStatus = "STOPPED_OUT"
	BracketStatusCancelled  BracketStatus = "CANCELLED"
)

// Terminal reports whether the status allows no further transitions.
func (s BracketStatus) Terminal() bool {
	switch s {
	case BracketStatusCompleted, BracketStatusStoppedOut, BracketStatusCancelled:
		return true
	}
	return false
}

// BracketOrder is an entry order paired with a stop-loss and target exit.
// Invariant at creation: for a BUY bracket, stopLoss < entryPrice < target
// (reversed for SELL). State transitions are monotonic.
type BracketOrder struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Quantity   int
	EntryPrice float64
	StopLoss   float64
	Target     float64
	OrderType  OrderType
	Status     BracketStatus

	EntryFillPrice float64
	ExitReason     string
	PnL            float64
	CreatedAt      time.Time
	EnteredAt      time.Time
	ExitedAt       time.Time
}

// NewBracketOrderID generates a bracket order identifier.
func NewBracketOrderID() string {
	return "BO-" + strings.ToUpper(uuid.NewString()[:8])
}

// OrderEvent is emitted when a conditional order fires and an actual
// order submission should happen downstream.
type OrderEvent struct {
	Symbol             string
	Side               OrderSide
	Quantity           int
	Price              float64
	OrderType          OrderType
	SourceTag          string
	OriginatingOrderID string
	Timestamp          time.Time
}
