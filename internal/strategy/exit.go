package strategy

import (
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// DecisionKind enumerates the exit evaluator outcomes.
type DecisionKind string

const (
	DecisionHold              DecisionKind = "hold"
	DecisionTrailingUpdate    DecisionKind = "trailing_update"
	DecisionCloseTakeProfit   DecisionKind = "close_take_profit"
	DecisionCloseTrailingStop DecisionKind = "close_trailing_stop"
	DecisionCloseStopLoss     DecisionKind = "close_stop_loss"
	DecisionCloseTimeout      DecisionKind = "close_timeout"
)

// Decision is the outcome of one exit evaluation tick.
type Decision struct {
	Kind DecisionKind

	// Set when Kind is DecisionTrailingUpdate.
	NewTrailingStop float64
	NewHighWater    float64
}

// IsClose reports whether the decision ends the position.
func (d Decision) IsClose() bool {
	switch d.Kind {
	case DecisionCloseTakeProfit, DecisionCloseTrailingStop, DecisionCloseStopLoss, DecisionCloseTimeout:
		return true
	}
	return false
}

// CloseReason maps a close decision onto the stored close reason.
func (d Decision) CloseReason() domain.CloseReason {
	switch d.Kind {
	case DecisionCloseTakeProfit:
		return domain.CloseReasonTakeProfit
	case DecisionCloseTrailingStop:
		return domain.CloseReasonTrailingStop
	case DecisionCloseStopLoss:
		return domain.CloseReasonStopLoss
	case DecisionCloseTimeout:
		return domain.CloseReasonTimeout
	default:
		return ""
	}
}

// EvaluateExit decides the fate of one open position at the current price.
// Checks run in fixed priority order; when thresholds contradict each other
// the earlier check wins, never the larger magnitude:
//
//	1. take-profit
//	2. trailing stop (when armed)
//	3. fixed stop-loss
//	4. max hold time (when configured)
//	5. trailing-stop arm or ratchet, otherwise hold
//
// The trailing stop arms or ratchets only when the price exceeds the
// high-water mark by the activation margin, and the resulting stop never
// lowers an existing one.
func EvaluateExit(p domain.Position, currentPrice float64, now time.Time, params Params) Decision {
	if currentPrice >= p.TakePrice {
		return Decision{Kind: DecisionCloseTakeProfit}
	}
	if p.TrailingArmed() && currentPrice <= *p.TrailingStop {
		return Decision{Kind: DecisionCloseTrailingStop}
	}
	if currentPrice <= p.StopPrice {
		return Decision{Kind: DecisionCloseStopLoss}
	}
	if params.MaxHoldHours > 0 {
		maxHold := time.Duration(params.MaxHoldHours * float64(time.Hour))
		if now.Sub(p.OpenedAt) >= maxHold {
			return Decision{Kind: DecisionCloseTimeout}
		}
	}

	activation := p.HighWater * (1 + params.TrailingActivationPct/100)
	if currentPrice >= activation {
		newStop := currentPrice * (1 - params.TrailingStopPct/100)
		if !p.TrailingArmed() || newStop > *p.TrailingStop {
			return Decision{
				Kind:            DecisionTrailingUpdate,
				NewTrailingStop: newStop,
				NewHighWater:    currentPrice,
			}
		}
	}

	return Decision{Kind: DecisionHold}
}
