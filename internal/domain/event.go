package domain

import "time"

// EventKind enumerates the append-only strategy audit events.
type EventKind string

const (
	EventPositionOpened   EventKind = "position_opened"
	EventPositionClosed   EventKind = "position_closed"
	EventTriggerUpdated   EventKind = "trigger_updated"
	EventDiscoverySkipped EventKind = "discovery_skipped"
	EventRiskRejected     EventKind = "risk_rejected"
	EventExecutionFailure EventKind = "execution_failure"
	EventCycleSkipped     EventKind = "cycle_skipped"
	EventReset            EventKind = "reset"
)

// Event is one row of the strategy audit trail. Events are immutable once
// written; only an explicit reset removes them.
type Event struct {
	ID         int64
	Kind       EventKind
	PositionID *string // nil for cycle-level events
	Detail     map[string]any
	CreatedAt  time.Time
}
