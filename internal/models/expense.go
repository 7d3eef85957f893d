package models

import "github.com/shopspring/decimal"

// SplitType describes how an expense is divided among entities.
type SplitType string

const (
	// SplitEqual divides the amount evenly across the split entities.
	SplitEqual SplitType = "equal"

	// SplitRatio divides the amount proportionally to each split's ratio.
	SplitRatio SplitType = "ratio"

	// SplitCustom uses the authored per-entity amounts as-is.
	SplitCustom SplitType = "custom"
)

// ExpenseSplit is one entity's share of an expense.
type ExpenseSplit struct {
	// Entity is the user or group carrying this share.
	Entity Entity

	// Amount is this entity's share of the expense total.
	Amount decimal.Decimal

	// Ratio is the authored proportion for ratio splits. Zero otherwise.
	Ratio decimal.Decimal
}

// Expense is a single logged cost inside an event.
//
// Invariant: sum(Splits.Amount) == Amount within rounding tolerance, unless
// IsPrivate (splits are ignored) or SplitType is custom (accepted as
// authored; data integrity is the caller's concern).
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// EventID is the event this expense belongs to.
	EventID string

	// Title is the human-readable description.
	Title string

	// Amount is the full expense amount in Currency.
	Amount decimal.Decimal

	// Currency is the ISO code the expense was paid in.
	Currency string

	// PaidBy is the user ID of the person who paid.
	PaidBy string

	// IsPrivate excludes the expense from the shared ledger entirely.
	IsPrivate bool

	// SplitType is how the amount was divided.
	SplitType SplitType

	// Splits are the per-entity shares. Empty for private expenses.
	Splits []ExpenseSplit

	// PaidOnBehalfOf names entities the payer fronted money for. Their
	// split shares do not count toward the payer's ledger credit; the
	// fronted entities owe the payer directly.
	PaidOnBehalfOf []Entity

	// CreatedBy is the user ID that logged the expense.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the expense was created.
	CreatedAt int64
}

// BehalfOf reports whether entity is named in PaidOnBehalfOf.
func (e *Expense) BehalfOf(entity Entity) bool {
	for _, b := range e.PaidOnBehalfOf {
		if b == entity {
			return true
		}
	}
	return false
}
