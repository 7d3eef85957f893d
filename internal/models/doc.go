// Package models defines the core domain types for Splitex.
//
// # Ledger entities
//
// Balances are tracked per Entity, which is either a bare user or a group.
// A group collapses its members onto one ledger line; its designated payer
// is the only human who moves money for it. The Entity tagged union keeps
// the ledger and planner free of user-vs-group special cases beyond a
// single payer-resolution step.
//
// # Money
//
// All amounts are decimal.Decimal. Balances and settlement amounts are
// rounded to the currency's minor units with round-half-to-even, and
// anything below Epsilon is treated as zero.
//
// # Lifecycle ownership
//
//   - Expense/Event rows are owned by the services in internal/service.
//   - Balance values are derived: recomputed from expenses on every
//     planning run, never persisted.
//   - Settlement rows are created in bulk by the planner and then owned
//     by the lifecycle manager until they reach a terminal status.
package models
