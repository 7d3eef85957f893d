package models

import "github.com/shopspring/decimal"

// SettlementStatus is the lifecycle state of one planned payment.
type SettlementStatus string

const (
	// SettlementPending is the initial state after plan generation.
	SettlementPending SettlementStatus = "pending"

	// SettlementInitiated means the payer started a payment attempt.
	SettlementInitiated SettlementStatus = "initiated"

	// SettlementCompleted means the payee confirmed receipt. Terminal.
	SettlementCompleted SettlementStatus = "completed"

	// SettlementFailed means the gateway reported a failure. Terminal
	// unless the payer retries.
	SettlementFailed SettlementStatus = "failed"

	// SettlementTerminated means the parent event was deleted before the
	// settlement completed. Terminal, outside the normal flow.
	SettlementTerminated SettlementStatus = "terminated"

	// SettlementSuperseded means a newer plan replaced this settlement
	// before any money moved. Terminal.
	SettlementSuperseded SettlementStatus = "superseded"
)

// Terminal reports whether the status admits no further transitions.
func (s SettlementStatus) Terminal() bool {
	switch s {
	case SettlementCompleted, SettlementTerminated, SettlementSuperseded:
		return true
	}
	return false
}

// Open reports whether the settlement still needs to reach completed.
// Failed settlements are open: they can be retried.
func (s SettlementStatus) Open() bool {
	return !s.Terminal()
}

// Settlement is one planned payment transferring a balance between two
// entities. Created in bulk by the planner; its lifecycle is owned by the
// lifecycle manager.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// EventID is the event this settlement belongs to.
	EventID string

	// PlanVersion is the generation run that produced this settlement.
	PlanVersion int64

	// From is the debtor entity, To the creditor entity.
	From Entity
	To   Entity

	// FromUserID and ToUserID are the humans who actually move money.
	// For group entities these resolve to the group's designated payer.
	FromUserID string
	ToUserID   string

	// Amount is the transfer amount in Currency (the event currency).
	Amount   decimal.Decimal
	Currency string

	// SettlementAmount/SettlementCurrency/FxRate are set when the event
	// settles in a different currency than it is denominated in.
	SettlementAmount   *decimal.Decimal
	SettlementCurrency string
	FxRate             *decimal.Decimal

	Status SettlementStatus

	// PaymentMethod is the gateway provider used ("mock", "stripe", ...).
	PaymentMethod string

	// PaymentID is the provider's payment identifier, CheckoutURL the
	// hosted page the payer is sent to, when the provider has one.
	PaymentID   string
	CheckoutURL string

	// FailureReason holds the gateway's message for failed attempts.
	FailureReason string

	// RetryCount is how many times the payer re-invoked the gateway.
	RetryCount int

	CreatedAt   int64
	InitiatedAt *int64
	FailedAt    *int64
	CompletedAt *int64
}
