package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateID       = errors.New("duplicate id")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrValidation        = errors.New("validation failed")
	ErrContextDone       = errors.New("context cancelled")
)

// FailureKind classifies collaborator failures into machine-readable reasons.
type FailureKind string

const (
	FailureTimeout             FailureKind = "timeout"
	FailureRejected            FailureKind = "rejected"
	FailureInsufficientBalance FailureKind = "insufficient_balance"
	FailureNetwork             FailureKind = "network"
	FailureNotFound            FailureKind = "not_found"
	FailureBadResponse         FailureKind = "bad_response"
)

// CollaboratorError wraps a failure from an external collaborator (market
// data, safety check, or execution venue). It downgrades a single candidate
// or a single position's cycle outcome; it never aborts a whole cycle.
type CollaboratorError struct {
	Collaborator string // "market_data", "safety_check", "execution"
	Kind         FailureKind
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Collaborator, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Collaborator, e.Kind, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// NewCollaboratorError builds a CollaboratorError for the given source.
func NewCollaboratorError(collaborator string, kind FailureKind, err error) *CollaboratorError {
	return &CollaboratorError{Collaborator: collaborator, Kind: kind, Err: err}
}

// AsCollaboratorError returns the wrapped CollaboratorError if err carries one.
func AsCollaboratorError(err error) (*CollaboratorError, bool) {
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
