// Package domain defines the core types of the portfolio strategy engine and
// the interfaces its stores, caches, and collaborators implement.
package domain

import (
	"fmt"
	"time"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// CloseReason records why a position left the portfolio.
type CloseReason string

const (
	CloseReasonTakeProfit   CloseReason = "take_profit"
	CloseReasonStopLoss     CloseReason = "stop_loss"
	CloseReasonTrailingStop CloseReason = "trailing_stop"
	CloseReasonTimeout      CloseReason = "max_hold_time"
	CloseReasonManual       CloseReason = "manual"
)

// Position is one tracked holding. A position is created by the discovery
// cycle, mutated only by trailing-stop updates or a close, and deleted only
// by an explicit reset once closed.
type Position struct {
	ID           string
	TokenAddress string
	Symbol       string
	Chain        string

	EntryPrice  float64
	Quantity    float64 // base-asset amount bought at entry
	NotionalUSD float64 // quote-currency amount spent at entry

	StopPrice    float64  // fixed stop-loss, set at creation
	TakePrice    float64  // fixed take-profit, set at creation
	TrailingStop *float64 // nil until the trailing stop arms
	HighWater    float64  // highest observed price, starts at entry

	Score  float64 // discovery momentum score at entry
	DryRun bool

	Status   PositionStatus
	OpenedAt time.Time

	ClosedAt       *time.Time
	ExitPrice      *float64
	RealizedPnLUSD *float64
	CloseReason    *CloseReason
}

// IsOpen reports whether the position is still held.
func (p Position) IsOpen() bool { return p.Status == PositionStatusOpen }

// TrailingArmed reports whether the trailing stop has been set at least once.
func (p Position) TrailingArmed() bool { return p.TrailingStop != nil }

// NewPosition builds an open position and validates its entry invariants:
// stop < entry < take, positive quantity and notional. The high-water mark
// starts at the entry price.
func NewPosition(id, tokenAddress, symbol, chain string, entryPrice, quantity, notionalUSD, stopPrice, takePrice, score float64, dryRun bool, openedAt time.Time) (Position, error) {
	if id == "" {
		return Position{}, fmt.Errorf("%w: position id is empty", ErrValidation)
	}
	if tokenAddress == "" {
		return Position{}, fmt.Errorf("%w: token address is empty", ErrValidation)
	}
	if entryPrice <= 0 {
		return Position{}, fmt.Errorf("%w: entry price %.12f must be positive", ErrValidation, entryPrice)
	}
	if quantity <= 0 || notionalUSD <= 0 {
		return Position{}, fmt.Errorf("%w: quantity and notional must be positive", ErrValidation)
	}
	if !(stopPrice < entryPrice && entryPrice < takePrice) {
		return Position{}, fmt.Errorf("%w: require stop %.12f < entry %.12f < take %.12f",
			ErrValidation, stopPrice, entryPrice, takePrice)
	}

	return Position{
		ID:           id,
		TokenAddress: tokenAddress,
		Symbol:       symbol,
		Chain:        chain,
		EntryPrice:   entryPrice,
		Quantity:     quantity,
		NotionalUSD:  notionalUSD,
		StopPrice:    stopPrice,
		TakePrice:    takePrice,
		HighWater:    entryPrice,
		Score:        score,
		DryRun:       dryRun,
		Status:       PositionStatusOpen,
		OpenedAt:     openedAt.UTC(),
	}, nil
}

// ValidateTrailingUpdate checks that a trailing-stop mutation respects the
// monotonic ratchet: the stop never lowers and the high-water mark never
// falls below the entry price. Closed positions are immutable.
func ValidateTrailingUpdate(p Position, newStop, newHighWater float64) error {
	if !p.IsOpen() {
		return fmt.Errorf("%w: position %s is closed", ErrInvalidTransition, p.ID)
	}
	if p.TrailingStop != nil && newStop < *p.TrailingStop {
		return fmt.Errorf("%w: trailing stop %.12f would lower existing %.12f",
			ErrInvalidTransition, newStop, *p.TrailingStop)
	}
	if newHighWater < p.EntryPrice {
		return fmt.Errorf("%w: high water %.12f below entry %.12f",
			ErrInvalidTransition, newHighWater, p.EntryPrice)
	}
	if newHighWater < p.HighWater {
		return fmt.Errorf("%w: high water %.12f would lower existing %.12f",
			ErrInvalidTransition, newHighWater, p.HighWater)
	}
	return nil
}

// ValidateClose enforces the close state machine: only open positions close,
// and closing an already-closed position is a no-op when the reason matches
// (ok=false, err=nil) but an invalid transition when it differs.
func ValidateClose(p Position, reason CloseReason) (needswrite bool, err error) {
	if p.IsOpen() {
		return true, nil
	}
	if p.CloseReason != nil && *p.CloseReason == reason {
		return false, nil
	}
	have := CloseReason("")
	if p.CloseReason != nil {
		have = *p.CloseReason
	}
	return false, fmt.Errorf("%w: position %s already closed as %q, cannot close as %q",
		ErrInvalidTransition, p.ID, have, reason)
}
