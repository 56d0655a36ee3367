package domain

import (
	"context"
	"time"
)

// PositionStore persists positions. All writes are durable before the call
// returns so a crash mid-cycle leaves the store consistent with the last
// completed operation.
type PositionStore interface {
	// Insert creates an open position. Fails with ErrDuplicateID when the
	// identifier already exists.
	Insert(ctx context.Context, p Position) error
	// GetByID returns a position or ErrNotFound.
	GetByID(ctx context.Context, id string) (Position, error)
	// GetOpenByToken returns the open position for a token, or ErrNotFound.
	GetOpenByToken(ctx context.Context, tokenAddress, chain string) (Position, error)
	// ListOpen returns all open positions in insertion order.
	ListOpen(ctx context.Context) ([]Position, error)
	// ListClosed returns recently closed positions, newest first.
	ListClosed(ctx context.Context, limit int) ([]Position, error)
	// CountOpen returns the number of open positions.
	CountOpen(ctx context.Context) (int, error)
	// UpdateTrailingStop ratchets the trailing stop and high-water mark.
	// Fails with ErrNotFound for unknown ids and ErrInvalidTransition when
	// the position is closed or the update would lower either value.
	UpdateTrailingStop(ctx context.Context, id string, newStop, newHighWater float64) error
	// Close transitions an open position to closed. Closing an
	// already-closed position with the same reason is a no-op; with a
	// different reason it fails with ErrInvalidTransition.
	Close(ctx context.Context, id string, reason CloseReason, exitPrice, realizedPnLUSD float64, closedAt time.Time) error
	// RealizedPnLSince sums realized PnL of positions closed at or after the
	// cutoff.
	RealizedPnLSince(ctx context.Context, since time.Time) (float64, error)
	// LastEntryTime returns the most recent opened_at for a token, or nil.
	LastEntryTime(ctx context.Context, tokenAddress, chain string) (*time.Time, error)
	// DeleteClosed removes all closed positions, returning the count. Open
	// positions are never deleted.
	DeleteClosed(ctx context.Context) (int64, error)
}

// EventStore persists the append-only strategy event log.
type EventStore interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, limit int) ([]Event, error)
	// LastOfKind returns the timestamp of the most recent event of the given
	// kind, or nil when none exists.
	LastOfKind(ctx context.Context, kind EventKind) (*time.Time, error)
	// DeleteAll clears the event log, returning the count removed.
	DeleteAll(ctx context.Context) (int64, error)
}

// PenaltyStore tracks per-token discovery penalties: after repeated losing
// stop-loss closes a token sits out a number of discovery cycles.
type PenaltyStore interface {
	// SkipCycles returns the remaining cycles the token must sit out.
	SkipCycles(ctx context.Context, tokenAddress, chain string) (int, error)
	// RecordLoss increments the token's losing-stop streak and returns the
	// new streak; at two consecutive losses the token is benched for one
	// discovery cycle.
	RecordLoss(ctx context.Context, tokenAddress, chain string, at time.Time) (int, error)
	// Advance decrements every benched token's counter by one cycle and
	// clears the loss streak of tokens that just finished sitting out.
	Advance(ctx context.Context, chain string) (int64, error)
	// Clear resets the penalty state for one token.
	Clear(ctx context.Context, tokenAddress, chain string) error
}

// ParamStore persists runtime parameter overrides so they survive restarts.
type ParamStore interface {
	Set(ctx context.Context, name, value string) error
	All(ctx context.Context) (map[string]string, error)
	Delete(ctx context.Context, name string) error
}

// PriceCache caches last-known token prices keyed by chain and address.
type PriceCache interface {
	SetPrice(ctx context.Context, chain, tokenAddress string, price float64, ts time.Time) error
	// GetPrice returns the cached price and its timestamp, or ErrNotFound.
	GetPrice(ctx context.Context, chain, tokenAddress string) (float64, time.Time, error)
}
