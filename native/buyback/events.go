package buyback

import (
	"math/big"

	"workmesh/core/events"
	"workmesh/core/types"
)

// TypeBuybackExecuted is emitted once per conversion invocation, including
// the zero-amount, no-venue and venue-failure paths.
const TypeBuybackExecuted = "buyback.executed"

// Conversion results reported on the accounting event.
const (
	ResultBurned   = "burned"
	ResultDisabled = "disabled"
	ResultFallback = "fallback"
	ResultNoop     = "noop"
)

// Executed is the accounting record of a single conversion attempt.
type Executed struct {
	Asset    string
	AmountIn *big.Int
	Burned   *big.Int
	Result   string
}

func (Executed) EventType() string { return TypeBuybackExecuted }

func (e Executed) Event() *types.Event {
	return &types.Event{
		Type: TypeBuybackExecuted,
		Attributes: map[string]string{
			"asset":    e.Asset,
			"amountIn": events.FormatAmount(e.AmountIn),
			"burned":   events.FormatAmount(e.Burned),
			"result":   e.Result,
		},
	}
}
