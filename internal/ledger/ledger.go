// Package ledger computes net entity balances for an event from its
// expenses. Balances are derived values: the ledger reads expenses and
// returns fresh positions, it never writes anything.
package ledger

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/models"
)

// ComputeBalances resolves the signed net position of every entity in the
// event. Positive = owed money, negative = owes money.
//
// Rules:
//   - Private expenses never enter the shared ledger.
//   - The payer entity is the payer's group when they belong to one,
//     otherwise the payer themselves.
//   - The payer is credited the expense amount minus the split shares of
//     any paid-on-behalf-of entities: fronted shares earn no ledger
//     credit, the fronted entity owes the payer off-ledger.
//   - Every split line debits its entity by the authored amount. Custom
//     splits that don't sum to the expense total are accepted as
//     authored; data integrity is the caller's concern.
//
// Entities whose final balance is zero within models.Epsilon are dropped.
// The result is sorted by entity key so identical inputs always yield an
// identical slice.
func ComputeBalances(currency string, expenses []models.Expense, participants []models.Participant, groups []models.Group) []models.Balance {
	memberGroup := make(map[string]string, len(groups))
	for _, g := range groups {
		for _, m := range g.Members {
			memberGroup[m] = g.ID
		}
	}

	// resolve maps a user to the entity holding their ledger line.
	resolve := func(userID string) models.Entity {
		if gid, ok := memberGroup[userID]; ok {
			return models.GroupEntity(gid)
		}
		return models.UserEntity(userID)
	}

	balances := make(map[models.Entity]decimal.Decimal)
	touch := func(e models.Entity) {
		if _, ok := balances[e]; !ok {
			balances[e] = decimal.Zero
		}
	}

	for _, p := range participants {
		touch(resolve(p.UserID))
	}

	for _, exp := range expenses {
		if exp.IsPrivate {
			continue
		}

		payer := resolve(exp.PaidBy)
		touch(payer)

		credit := exp.Amount
		for _, split := range exp.Splits {
			touch(split.Entity)
			balances[split.Entity] = balances[split.Entity].Sub(split.Amount)
			if exp.BehalfOf(split.Entity) {
				credit = credit.Sub(split.Amount)
			}
		}
		balances[payer] = balances[payer].Add(credit)
	}

	out := make([]models.Balance, 0, len(balances))
	for entity, amount := range balances {
		rounded := models.RoundMoney(amount, currency)
		if models.IsZeroAmount(rounded) {
			continue
		}
		out = append(out, models.Balance{Entity: entity, Amount: rounded})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Entity.Key() < out[j].Entity.Key()
	})
	return out
}
