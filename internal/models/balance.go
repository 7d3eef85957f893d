package models

import "github.com/shopspring/decimal"

// Balance is the signed net position of one entity within an event.
// Positive = is owed money, negative = owes money.
//
// Balances are derived, never persisted: they are recomputed from the
// event's expenses on every planning run, so concurrent requests never
// mutate a shared balance in place.
type Balance struct {
	Entity Entity
	Amount decimal.Decimal
}
