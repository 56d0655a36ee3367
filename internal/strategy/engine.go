package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// Notifier receives human-readable trade notifications. Delivery is
// best-effort and never blocks a cycle outcome.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// After a collaborator failure for a token, its exit checks pause for this
// window so a flapping price feed cannot spam the venue.
const errorSkipWindow = 5 * time.Minute

// EngineConfig wires the engine's collaborators and stores.
type EngineConfig struct {
	Positions domain.PositionStore
	Events    domain.EventStore
	Penalties domain.PenaltyStore
	Guard     *Guard
	Pipeline  *Pipeline
	Executor  *Executor
	Market    MarketData
	Params    *ParamSet
	Chain     string

	// Optional hooks.
	Notifier  Notifier
	Broadcast func(domain.Event)
}

// Engine owns the two cycle bodies and the manual operations. All
// store-mutating sections serialize through a single mutex so a position is
// never read by one cycle mid-update by the other; collaborator calls stay
// outside the lock.
type Engine struct {
	cfg    EngineConfig
	logger *slog.Logger

	mu        sync.Mutex
	errorSkip map[string]time.Time
}

// NewEngine creates the strategy engine.
func NewEngine(cfg EngineConfig, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "engine")),
		errorSkip: make(map[string]time.Time),
	}
}

// DiscoveryResult summarizes one discovery cycle.
type DiscoveryResult struct {
	Candidates int      `json:"candidates"`
	Opened     int      `json:"opened"`
	OpenedIDs  []string `json:"opened_ids,omitempty"`
	Halted     string   `json:"halted,omitempty"` // rejection reason that stopped further opens
}

// ExitResult summarizes one exit-check cycle.
type ExitResult struct {
	Checked         int      `json:"checked"`
	TrailingUpdates int      `json:"trailing_updates"`
	Closed          int      `json:"closed"`
	ClosedIDs       []string `json:"closed_ids,omitempty"`
	Skipped         int      `json:"skipped"`
}

// RunDiscoveryCycle scans for candidates and opens positions for the best of
// them, up to the guard's available slots and the per-cycle cap. A cycle with
// zero qualifying candidates completes without error. Benched-token counters
// advance once per cycle regardless of outcome.
func (e *Engine) RunDiscoveryCycle(ctx context.Context) (DiscoveryResult, error) {
	params := e.cfg.Params.Snapshot()
	now := time.Now().UTC()
	var res DiscoveryResult

	defer func() {
		if _, err := e.cfg.Penalties.Advance(ctx, e.cfg.Chain); err != nil {
			e.logger.Warn("penalty advance failed", slog.String("error", err.Error()))
		}
	}()

	candidates, err := e.cfg.Pipeline.Discover(ctx, params, now)
	if err != nil {
		return res, err
	}
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		e.logger.Info("discovery cycle found no qualifying candidates")
		e.mu.Lock()
		e.appendEvent(ctx, domain.Event{
			Kind:   domain.EventDiscoverySkipped,
			Detail: map[string]any{"reason": "no_candidates"},
		})
		e.mu.Unlock()
		return res, nil
	}

	for _, c := range candidates {
		if res.Opened >= params.MaxNewPerCycle {
			break
		}

		state, err := e.cfg.Guard.State(ctx, now)
		if err != nil {
			return res, err
		}
		adm := CanOpen(state, params, time.Now().UTC())
		if !adm.Allowed {
			e.appendEvent(ctx, domain.Event{
				Kind: domain.EventRiskRejected,
				Detail: map[string]any{
					"reason": string(adm.Reason),
					"detail": adm.Detail,
					"token":  c.TokenAddress,
				},
			})
			// Capacity, daily-limit, and cooldown rejections are all
			// cycle-global; no later candidate can fare better.
			res.Halted = string(adm.Reason)
			break
		}

		id, err := e.openCandidate(ctx, c, params)
		if err != nil {
			e.logger.Warn("open failed",
				slog.String("token", c.TokenAddress),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Opened++
		res.OpenedIDs = append(res.OpenedIDs, id)
	}

	return res, nil
}

// openCandidate executes the buy and inserts the resulting position. An
// execution failure is recorded as an event, arming the guard cooldown.
func (e *Engine) openCandidate(ctx context.Context, c domain.Candidate, params Params) (string, error) {
	fill, err := e.cfg.Executor.Open(ctx, c, params.PositionSizeUSD, params.DryRun)
	if err != nil {
		e.recordExecutionFailure(ctx, "", c.TokenAddress, "open", err)
		return "", err
	}

	stopPrice := fill.Price * (1 - params.StopLossPct/100)
	takePrice := fill.Price * (1 + params.TakeProfitPct/100)

	pos, err := domain.NewPosition(
		uuid.NewString(), c.TokenAddress, c.Symbol, c.Chain,
		fill.Price, fill.Quantity, params.PositionSizeUSD,
		stopPrice, takePrice, c.Score, fill.DryRun, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("strategy: build position for %s: %w", c.TokenAddress, err)
	}

	e.mu.Lock()
	if err := e.cfg.Positions.Insert(ctx, pos); err != nil {
		e.mu.Unlock()
		return "", fmt.Errorf("strategy: insert position %s: %w", pos.ID, err)
	}
	e.appendEvent(ctx, domain.Event{
		Kind:       domain.EventPositionOpened,
		PositionID: &pos.ID,
		Detail: map[string]any{
			"token":       pos.TokenAddress,
			"symbol":      pos.Symbol,
			"entry_price": pos.EntryPrice,
			"quantity":    pos.Quantity,
			"stop_price":  pos.StopPrice,
			"take_price":  pos.TakePrice,
			"score":       pos.Score,
			"dry_run":     pos.DryRun,
			"tx":          fill.TxRef,
		},
	})
	e.mu.Unlock()

	e.notify(ctx, fmt.Sprintf("Opened %s at $%.10f (size $%.2f, TP $%.10f, SL $%.10f)",
		pos.Symbol, pos.EntryPrice, pos.NotionalUSD, pos.TakePrice, pos.StopPrice))
	e.logger.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Bool("dry_run", pos.DryRun),
	)
	return pos.ID, nil
}

// RunExitChecks prices every open position and applies the exit evaluator's
// decision. Collaborator failures skip only the affected position.
func (e *Engine) RunExitChecks(ctx context.Context) (ExitResult, error) {
	params := e.cfg.Params.Snapshot()
	var res ExitResult

	open, err := e.cfg.Positions.ListOpen(ctx)
	if err != nil {
		return res, fmt.Errorf("strategy: exit checks: %w", err)
	}

	for _, p := range open {
		now := time.Now().UTC()
		if e.inErrorSkip(p.TokenAddress, now) {
			res.Skipped++
			continue
		}
		res.Checked++

		price, err := e.cfg.Market.TokenPrice(ctx, p.Chain, p.TokenAddress)
		if err != nil {
			e.logger.Warn("price fetch failed, skipping position",
				slog.String("position_id", p.ID),
				slog.String("token", p.TokenAddress),
				slog.String("error", err.Error()),
			)
			e.setErrorSkip(p.TokenAddress, now)
			res.Skipped++
			continue
		}

		decision := EvaluateExit(p, price, now, params)
		switch {
		case decision.Kind == DecisionTrailingUpdate:
			if err := e.applyTrailingUpdate(ctx, p, decision); err != nil {
				e.logger.Warn("trailing update failed",
					slog.String("position_id", p.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			res.TrailingUpdates++

		case decision.IsClose():
			if err := e.closePosition(ctx, p, decision.CloseReason(), price, params); err != nil {
				e.logger.Warn("close failed",
					slog.String("position_id", p.ID),
					slog.String("reason", string(decision.CloseReason())),
					slog.String("error", err.Error()),
				)
				e.setErrorSkip(p.TokenAddress, now)
				continue
			}
			res.Closed++
			res.ClosedIDs = append(res.ClosedIDs, p.ID)
		}
	}

	return res, nil
}

// applyTrailingUpdate ratchets the trailing stop through the store, which
// revalidates the monotonic invariant under the lock.
func (e *Engine) applyTrailingUpdate(ctx context.Context, p domain.Position, d Decision) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.cfg.Positions.UpdateTrailingStop(ctx, p.ID, d.NewTrailingStop, d.NewHighWater); err != nil {
		return err
	}
	e.appendEvent(ctx, domain.Event{
		Kind:       domain.EventTriggerUpdated,
		PositionID: &p.ID,
		Detail: map[string]any{
			"token":         p.TokenAddress,
			"trailing_stop": d.NewTrailingStop,
			"high_water":    d.NewHighWater,
		},
	})
	e.logger.Info("trailing stop ratcheted",
		slog.String("position_id", p.ID),
		slog.Float64("trailing_stop", d.NewTrailingStop),
		slog.Float64("high_water", d.NewHighWater),
	)
	return nil
}

// closePosition sells the position and records the close. A losing stop-loss
// feeds the token's penalty streak.
func (e *Engine) closePosition(ctx context.Context, p domain.Position, reason domain.CloseReason, currentPrice float64, params Params) error {
	fill, err := e.cfg.Executor.Close(ctx, p, currentPrice, params.DryRun)
	if err != nil {
		e.recordExecutionFailure(ctx, p.ID, p.TokenAddress, "close", err)
		return err
	}

	realized := (fill.Price - p.EntryPrice) * p.Quantity
	closedAt := time.Now().UTC()

	e.mu.Lock()
	if err := e.cfg.Positions.Close(ctx, p.ID, reason, fill.Price, realized, closedAt); err != nil {
		e.mu.Unlock()
		return err
	}
	e.appendEvent(ctx, domain.Event{
		Kind:       domain.EventPositionClosed,
		PositionID: &p.ID,
		Detail: map[string]any{
			"token":        p.TokenAddress,
			"symbol":       p.Symbol,
			"reason":       string(reason),
			"exit_price":   fill.Price,
			"realized_pnl": realized,
			"dry_run":      fill.DryRun,
			"tx":           fill.TxRef,
		},
	})
	e.mu.Unlock()

	if reason == domain.CloseReasonStopLoss && realized < 0 {
		if _, err := e.cfg.Penalties.RecordLoss(ctx, p.TokenAddress, p.Chain, closedAt); err != nil {
			e.logger.Warn("penalty record failed",
				slog.String("token", p.TokenAddress),
				slog.String("error", err.Error()),
			)
		}
	}

	e.notify(ctx, fmt.Sprintf("Closed %s at $%.10f (%s, PnL $%.2f)",
		p.Symbol, fill.Price, reason, realized))
	e.logger.Info("position closed",
		slog.String("position_id", p.ID),
		slog.String("reason", string(reason)),
		slog.Float64("exit_price", fill.Price),
		slog.Float64("realized_pnl", realized),
	)
	return nil
}

// ClosePosition closes one position manually at the current market price.
func (e *Engine) ClosePosition(ctx context.Context, id string) (domain.Position, error) {
	p, err := e.cfg.Positions.GetByID(ctx, id)
	if err != nil {
		return domain.Position{}, err
	}
	if !p.IsOpen() {
		// Delegate the idempotence/transition decision to the domain rule.
		if _, err := domain.ValidateClose(p, domain.CloseReasonManual); err != nil {
			return domain.Position{}, err
		}
		return p, nil
	}

	price, err := e.cfg.Market.TokenPrice(ctx, p.Chain, p.TokenAddress)
	if err != nil {
		return domain.Position{}, err
	}

	if err := e.closePosition(ctx, p, domain.CloseReasonManual, price, e.cfg.Params.Snapshot()); err != nil {
		return domain.Position{}, err
	}
	return e.cfg.Positions.GetByID(ctx, id)
}

// CloseAll closes every open position manually, continuing past per-position
// failures. It returns the ids that closed.
func (e *Engine) CloseAll(ctx context.Context) ([]string, error) {
	open, err := e.cfg.Positions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("strategy: close all: %w", err)
	}

	var closed []string
	for _, p := range open {
		if _, err := e.ClosePosition(ctx, p.ID); err != nil {
			e.logger.Warn("close-all: position failed",
				slog.String("position_id", p.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed = append(closed, p.ID)
	}
	return closed, nil
}

// Archiver exports closed positions and the event log before a reset wipes
// them.
type Archiver interface {
	Archive(ctx context.Context, positions []domain.Position, events []domain.Event) (string, error)
}

// ResetResult summarizes a reset.
type ResetResult struct {
	PositionsDeleted int64  `json:"positions_deleted"`
	EventsDeleted    int64  `json:"events_deleted"`
	ArchiveRef       string `json:"archive_ref,omitempty"`
}

// Reset archives and deletes all closed positions and the event log. Open
// positions and their trigger prices are untouched; the daily-PnL view zeroes
// itself because it derives from the deleted closed rows.
func (e *Engine) Reset(ctx context.Context, archiver Archiver) (ResetResult, error) {
	var res ResetResult

	if archiver != nil {
		closed, err := e.cfg.Positions.ListClosed(ctx, 0)
		if err != nil {
			return res, fmt.Errorf("strategy: reset: %w", err)
		}
		events, err := e.cfg.Events.List(ctx, 0)
		if err != nil {
			return res, fmt.Errorf("strategy: reset: %w", err)
		}
		ref, err := archiver.Archive(ctx, closed, events)
		if err != nil {
			return res, fmt.Errorf("strategy: reset: archive: %w", err)
		}
		res.ArchiveRef = ref
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	deleted, err := e.cfg.Positions.DeleteClosed(ctx)
	if err != nil {
		return res, fmt.Errorf("strategy: reset: %w", err)
	}
	res.PositionsDeleted = deleted

	eventsDeleted, err := e.cfg.Events.DeleteAll(ctx)
	if err != nil {
		return res, fmt.Errorf("strategy: reset: %w", err)
	}
	res.EventsDeleted = eventsDeleted

	e.appendEvent(ctx, domain.Event{
		Kind: domain.EventReset,
		Detail: map[string]any{
			"positions_deleted": deleted,
			"events_deleted":    eventsDeleted,
			"archive_ref":       res.ArchiveRef,
		},
	})
	e.logger.Info("reset complete",
		slog.Int64("positions_deleted", deleted),
		slog.Int64("events_deleted", eventsDeleted),
	)
	return res, nil
}

// RiskStatus is the operator-facing summary of the risk guard.
type RiskStatus struct {
	OpenCount        int        `json:"open_count"`
	RealizedPnLToday float64    `json:"realized_pnl_today"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
}

// RiskStatus derives the current guard view for status reporting.
func (e *Engine) RiskStatus(ctx context.Context) (RiskStatus, error) {
	now := time.Now().UTC()
	state, err := e.cfg.Guard.State(ctx, now)
	if err != nil {
		return RiskStatus{}, err
	}

	status := RiskStatus{
		OpenCount:        state.OpenCount,
		RealizedPnLToday: state.RealizedPnLToday,
	}
	if until := CooldownUntil(state, e.cfg.Params.Snapshot()); until != nil && now.Before(*until) {
		status.CooldownUntil = until
	}
	return status, nil
}

// RecordCycleSkipped books the audit event for a tick that was skipped
// because the previous tick of the same cycle type was still running.
func (e *Engine) RecordCycleSkipped(ctx context.Context, cycle string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appendEvent(ctx, domain.Event{
		Kind:   domain.EventCycleSkipped,
		Detail: map[string]any{"cycle": cycle},
	})
}

// appendEvent writes an audit event and fans it out to the broadcast hook.
// Storage errors are logged, never propagated: the audit trail must not fail
// the operation it records.
func (e *Engine) appendEvent(ctx context.Context, ev domain.Event) {
	ev.CreatedAt = time.Now().UTC()
	if err := e.cfg.Events.Append(ctx, ev); err != nil {
		e.logger.Error("event append failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
	if e.cfg.Broadcast != nil {
		e.cfg.Broadcast(ev)
	}
}

// recordExecutionFailure books the failure event that arms the guard
// cooldown, for dry-run and live alike.
func (e *Engine) recordExecutionFailure(ctx context.Context, positionID, tokenAddress, op string, err error) {
	detail := map[string]any{
		"token":     tokenAddress,
		"operation": op,
		"error":     err.Error(),
	}
	if ce, ok := domain.AsCollaboratorError(err); ok {
		detail["kind"] = string(ce.Kind)
	}

	ev := domain.Event{Kind: domain.EventExecutionFailure, Detail: detail}
	if positionID != "" {
		ev.PositionID = &positionID
	}

	e.mu.Lock()
	e.appendEvent(ctx, ev)
	e.mu.Unlock()
}

func (e *Engine) inErrorSkip(tokenAddress string, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.errorSkip[tokenAddress]
	return ok && now.Sub(last) < errorSkipWindow
}

func (e *Engine) setErrorSkip(tokenAddress string, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errorSkip[tokenAddress] = now
}

func (e *Engine) notify(ctx context.Context, text string) {
	if e.cfg.Notifier != nil {
		e.cfg.Notifier.Notify(ctx, text)
	}
}
