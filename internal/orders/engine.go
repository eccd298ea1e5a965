package orders

import (
	"github.com/rs/zerolog"

	"zerodha-stream/internal/models"
)

// Engine combines the GTT and bracket sub-engines behind a single tick
// consumer. Both sub-engines evaluate every standing order for a symbol
// against one tick before the next tick is dequeued, so no order check
// ever sees a stale price relative to a newer queued tick.
type Engine struct {
	GTT     *GTTEngine
	Bracket *BracketEngine
}

// NewEngine creates the combined conditional order engine.
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{
		GTT:     NewGTTEngine(logger),
		Bracket: NewBracketEngine(logger),
	}
}

// SetEventHandler registers the order-submission callback on both
// sub-engines.
func (e *Engine) SetEventHandler(h EventHandler) {
	e.GTT.SetEventHandler(h)
	e.Bracket.SetEventHandler(h)
}

// OnTick implements the bridge consumer interface.
func (e *Engine) OnTick(tick models.Tick) {
	if tick.LTP <= 0 {
		return
	}
	e.GTT.CheckTriggers(tick.Symbol, tick.LTP)
	e.Bracket.CheckPrices(tick.Symbol, tick.LTP)
}
