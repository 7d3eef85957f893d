package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/models"
)

// RatioEntry pairs an entity with its authored proportion.
type RatioEntry struct {
	Entity models.Entity
	Ratio  decimal.Decimal
}

// EqualSplits divides amount evenly across entities. The last entity
// absorbs the rounding remainder so the shares always sum to amount
// exactly.
func EqualSplits(amount decimal.Decimal, currency string, entities []models.Entity) ([]models.ExpenseSplit, error) {
	if len(entities) == 0 {
		return nil, &models.ValidationError{Field: "splits", Message: "must have at least one entity"}
	}

	n := decimal.NewFromInt(int64(len(entities)))
	share := models.RoundMoney(amount.Div(n), currency)

	splits := make([]models.ExpenseSplit, len(entities))
	assigned := decimal.Zero
	for i, e := range entities {
		amt := share
		if i == len(entities)-1 {
			amt = amount.Sub(assigned)
		}
		splits[i] = models.ExpenseSplit{Entity: e, Amount: amt}
		assigned = assigned.Add(amt)
	}
	return splits, nil
}

// RatioSplits divides amount proportionally to each entry's ratio. As with
// EqualSplits, the last entity absorbs the rounding remainder.
func RatioSplits(amount decimal.Decimal, currency string, entries []RatioEntry) ([]models.ExpenseSplit, error) {
	if len(entries) == 0 {
		return nil, &models.ValidationError{Field: "splits", Message: "must have at least one entity"}
	}

	total := decimal.Zero
	for _, e := range entries {
		if e.Ratio.IsNegative() || e.Ratio.IsZero() {
			return nil, &models.ValidationError{Field: "splits", Message: fmt.Sprintf("ratio for %s must be positive", e.Entity)}
		}
		total = total.Add(e.Ratio)
	}

	splits := make([]models.ExpenseSplit, len(entries))
	assigned := decimal.Zero
	for i, e := range entries {
		amt := models.RoundMoney(amount.Mul(e.Ratio).Div(total), currency)
		if i == len(entries)-1 {
			amt = amount.Sub(assigned)
		}
		splits[i] = models.ExpenseSplit{Entity: e.Entity, Amount: amt, Ratio: e.Ratio}
		assigned = assigned.Add(amt)
	}
	return splits, nil
}

// ValidateSplits enforces the sum invariant for non-private expenses.
// Custom splits are accepted as authored: the ledger sums whatever is
// given, so a mismatch there is the author's business, not ours.
func ValidateSplits(exp *models.Expense) error {
	if exp.IsPrivate || exp.SplitType == models.SplitCustom {
		return nil
	}
	sum := decimal.Zero
	for _, s := range exp.Splits {
		sum = sum.Add(s.Amount)
	}
	if !models.IsZeroAmount(sum.Sub(exp.Amount)) {
		return &models.ValidationError{
			Field:   "splits",
			Message: fmt.Sprintf("split amounts sum to %s, expense amount is %s", sum, exp.Amount),
		}
	}
	return nil
}
