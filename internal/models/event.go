package models

import "github.com/shopspring/decimal"

// EventStatus is the settlement-relevant lifecycle of an event.
type EventStatus string

const (
	// EventActive accepts expense mutations; no plan exists yet.
	EventActive EventStatus = "active"

	// EventReview means a plan exists and is waiting for per-entity
	// approval before payments may start. Only used when the event has
	// RequireApproval set.
	EventReview EventStatus = "review"

	// EventPayment means a plan exists and payments are in flight.
	EventPayment EventStatus = "payment"

	// EventSettled means every settlement reached completed (or the plan
	// was empty).
	EventSettled EventStatus = "settled"

	// EventClosed is set only by explicit admin action.
	EventClosed EventStatus = "closed"
)

// FxRateMode selects how cross-currency settlement rates are obtained.
type FxRateMode string

const (
	// FxPredefined reads rates from the event's own rate table.
	FxPredefined FxRateMode = "predefined"

	// FxEndOfDay fetches the end-of-day rate for the settlement date
	// from an external rate source.
	FxEndOfDay FxRateMode = "eod"
)

// Event is a container of expenses settled together.
type Event struct {
	// ID is the unique identifier for the event (UUID format).
	ID string

	// Name is the display name ("Goa Trip", "Flat 4B").
	Name string

	// Currency is the ISO code every expense and balance is kept in.
	Currency string

	// SettlementCurrency, when non-empty and different from Currency,
	// makes settlements carry a converted amount. Pro-gated.
	SettlementCurrency string

	// FxRateMode selects the rate policy for cross-currency settlement.
	FxRateMode FxRateMode

	// PredefinedFxRates maps "FROM_TO" pairs to rates for FxPredefined.
	PredefinedFxRates map[string]decimal.Decimal

	Status EventStatus

	// RequireApproval gates plan execution behind per-entity approval:
	// generation lands the event in review instead of payment.
	RequireApproval bool

	// SettlementApprovals records which debtor entities approved the
	// current plan, keyed by Entity.Key().
	SettlementApprovals map[string]bool

	// SettlementStale is set when an expense mutates after the current
	// plan was generated; cleared on regeneration.
	SettlementStale bool

	// PlanVersion counts plan generations. Used as the optimistic
	// concurrency token: a generation only commits if the version it
	// read is still current.
	PlanVersion int64

	// CreatedBy is the user ID of the event admin.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the event was created.
	CreatedAt int64
}

// MultiCurrency reports whether the event settles in a currency other than
// the one it is denominated in.
func (e *Event) MultiCurrency() bool {
	return e.SettlementCurrency != "" && e.SettlementCurrency != e.Currency
}

// FxPairKey is the PredefinedFxRates key for a currency pair.
func FxPairKey(from, to string) string {
	return from + "_" + to
}
