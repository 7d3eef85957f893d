package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine. Use with errors.Is.
var (
	// ErrForbidden is returned when the wrong actor attempts a
	// settlement action (pay/retry by non-payer, approve by non-payee).
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned when a settlement action is not
	// valid from its current status.
	ErrInvalidTransition = errors.New("invalid settlement transition")

	// ErrValidation is returned for malformed input rejected before any
	// state change.
	ErrValidation = errors.New("validation failed")

	// ErrFxRateMissing is returned when a predefined rate table lacks
	// the needed pair. Generation aborts; no partial plan is persisted.
	ErrFxRateMissing = errors.New("fx rate missing")

	// ErrPlanConflict is returned when a concurrent generation won the
	// version race. Callers treat it as an idempotent skip.
	ErrPlanConflict = errors.New("settlement plan conflict")

	// ErrApprovalPending is returned when payment is attempted while the
	// event is still in review waiting for entity approvals.
	ErrApprovalPending = errors.New("settlement plan awaiting approval")
)

// TransitionError reports an action attempted from the wrong status.
type TransitionError struct {
	SettlementID string
	From         SettlementStatus
	Action       string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s settlement %s from status %q", e.Action, e.SettlementID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// FxRateMissingError identifies the pair a predefined table did not cover.
type FxRateMissingError struct {
	From string
	To   string
}

func (e *FxRateMissingError) Error() string {
	return fmt.Sprintf("no predefined fx rate for %s", FxPairKey(e.From, e.To))
}

func (e *FxRateMissingError) Unwrap() error { return ErrFxRateMissing }

// ValidationError carries a caller-facing message for rejected input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
