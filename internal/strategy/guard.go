package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// RejectReason classifies a risk-guard denial. Denials are expected outcomes,
// logged as events and returned as values, never as errors.
type RejectReason string

const (
	RejectCapacity   RejectReason = "capacity_rejected"
	RejectDailyLimit RejectReason = "daily_limit_rejected"
	RejectCooldown   RejectReason = "cooldown_active"
)

// RiskState is the guard's derived view of the portfolio. It is recomputed
// from the stores on every read so a restart never resurrects stale
// accumulators.
type RiskState struct {
	OpenCount        int
	RealizedPnLToday float64
	LastFailureAt    *time.Time
}

// Admission is the outcome of a CanOpen check.
type Admission struct {
	Allowed bool
	Reason  RejectReason
	Detail  string
}

// Allow is the admission that permits an open.
func Allow() Admission { return Admission{Allowed: true} }

// Reject builds a denial with the given reason and detail.
func Reject(reason RejectReason, detail string) Admission {
	return Admission{Reason: reason, Detail: detail}
}

// CanOpen decides whether a new position may be opened. Dry-run is irrelevant
// here: simulated positions fill capacity exactly like live ones. Checks are
// pure functions of the inputs.
func CanOpen(state RiskState, params Params, now time.Time) Admission {
	if state.OpenCount >= params.MaxPositions {
		return Reject(RejectCapacity,
			fmt.Sprintf("open positions %d at maximum %d", state.OpenCount, params.MaxPositions))
	}
	if params.DailyLossLimitUSD > 0 && state.RealizedPnLToday <= -params.DailyLossLimitUSD {
		return Reject(RejectDailyLimit,
			fmt.Sprintf("today's realized pnl %.2f breaches limit %.2f",
				state.RealizedPnLToday, -params.DailyLossLimitUSD))
	}
	if until := CooldownUntil(state, params); until != nil && now.Before(*until) {
		return Reject(RejectCooldown,
			fmt.Sprintf("execution-failure cooldown until %s", until.Format(time.RFC3339)))
	}
	return Allow()
}

// AvailableSlots returns how many positions may still be opened under the cap.
func AvailableSlots(state RiskState, params Params) int {
	slots := params.MaxPositions - state.OpenCount
	if slots < 0 {
		return 0
	}
	return slots
}

// CooldownUntil returns when the execution-failure cooldown lifts, or nil
// when no cooldown is armed.
func CooldownUntil(state RiskState, params Params) *time.Time {
	if state.LastFailureAt == nil || params.FailureCooldown <= 0 {
		return nil
	}
	until := state.LastFailureAt.Add(params.FailureCooldown)
	return &until
}

// DayStart returns the local-day cutover for PnL accounting. A position
// closed just before and one just after the cutover land in different
// accounting days.
func DayStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// Guard derives RiskState from the position and event stores.
type Guard struct {
	positions domain.PositionStore
	events    domain.EventStore
	loc       *time.Location
}

// NewGuard creates a Guard accounting PnL days in the given location.
func NewGuard(positions domain.PositionStore, events domain.EventStore, loc *time.Location) *Guard {
	if loc == nil {
		loc = time.Local
	}
	return &Guard{positions: positions, events: events, loc: loc}
}

// State recomputes the current risk state from the stores.
func (g *Guard) State(ctx context.Context, now time.Time) (RiskState, error) {
	count, err := g.positions.CountOpen(ctx)
	if err != nil {
		return RiskState{}, fmt.Errorf("strategy: risk state: %w", err)
	}

	pnl, err := g.positions.RealizedPnLSince(ctx, DayStart(now, g.loc))
	if err != nil {
		return RiskState{}, fmt.Errorf("strategy: risk state: %w", err)
	}

	lastFailure, err := g.events.LastOfKind(ctx, domain.EventExecutionFailure)
	if err != nil {
		return RiskState{}, fmt.Errorf("strategy: risk state: %w", err)
	}

	return RiskState{
		OpenCount:        count,
		RealizedPnLToday: pnl,
		LastFailureAt:    lastFailure,
	}, nil
}
