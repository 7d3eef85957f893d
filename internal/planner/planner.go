// Package planner reduces a set of entity balances to a minimal list of
// pairwise transfers using greedy min-cash-flow matching.
package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/fx"
	"github.com/vkarkhanis/splitex/internal/models"
)

type position struct {
	entity models.Entity
	amount decimal.Decimal // always positive
}

// sortPositions orders by magnitude descending, breaking ties by entity
// key ascending. The tie-break is what makes regeneration from identical
// balances deterministic.
func sortPositions(ps []position) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].amount.Equal(ps[j].amount) {
			return ps[i].amount.GreaterThan(ps[j].amount)
		}
		return ps[i].entity.Key() < ps[j].entity.Key()
	})
}

// Build turns balances into settlements for the event. The greedy match
// repeatedly pairs the largest debtor with the largest creditor, emitting
// at most N-1 transfers for N non-zero entities.
//
// When the event settles in a different currency, every settlement is
// annotated via the resolver; any rate failure aborts the whole build so
// no partial plan ever reaches persistence.
//
// FromUserID/ToUserID resolve group entities to the group's designated
// payer. A group without a payer is a validation error.
func Build(ctx context.Context, event *models.Event, balances []models.Balance, groups []models.Group, resolver *fx.Resolver) ([]*models.Settlement, error) {
	payers := make(map[string]string, len(groups))
	for _, g := range groups {
		payers[g.ID] = g.PayerUserID
	}

	resolveUser := func(e models.Entity) (string, error) {
		if e.Type == models.EntityUser {
			return e.ID, nil
		}
		payer, ok := payers[e.ID]
		if !ok || payer == "" {
			return "", &models.ValidationError{Field: "group", Message: fmt.Sprintf("group %s has no designated payer", e.ID)}
		}
		return payer, nil
	}

	var debtors, creditors []position
	for _, b := range balances {
		if models.IsZeroAmount(b.Amount) {
			continue
		}
		if b.Amount.IsNegative() {
			debtors = append(debtors, position{entity: b.Entity, amount: b.Amount.Neg()})
		} else {
			creditors = append(creditors, position{entity: b.Entity, amount: b.Amount})
		}
	}

	now := time.Now().Unix()
	var settlements []*models.Settlement

	for len(debtors) > 0 && len(creditors) > 0 {
		sortPositions(debtors)
		sortPositions(creditors)

		debtor, creditor := &debtors[0], &creditors[0]
		amount := decimal.Min(debtor.amount, creditor.amount)

		if !models.IsZeroAmount(amount) {
			fromUser, err := resolveUser(debtor.entity)
			if err != nil {
				return nil, err
			}
			toUser, err := resolveUser(creditor.entity)
			if err != nil {
				return nil, err
			}

			s := &models.Settlement{
				EventID:    event.ID,
				From:       debtor.entity,
				To:         creditor.entity,
				FromUserID: fromUser,
				ToUserID:   toUser,
				Amount:     models.RoundMoney(amount, event.Currency),
				Currency:   event.Currency,
				Status:     models.SettlementPending,
				CreatedAt:  now,
			}

			if event.MultiCurrency() {
				conv, err := resolver.Resolve(ctx, s.Amount, event.Currency, event.SettlementCurrency,
					event.FxRateMode, event.PredefinedFxRates, time.Now())
				if err != nil {
					return nil, err
				}
				if conv != nil {
					converted := conv.ConvertedAmount
					rate := conv.Rate
					s.SettlementAmount = &converted
					s.SettlementCurrency = event.SettlementCurrency
					s.FxRate = &rate
				}
			}

			settlements = append(settlements, s)
		}

		debtor.amount = debtor.amount.Sub(amount)
		creditor.amount = creditor.amount.Sub(amount)
		if models.IsZeroAmount(debtor.amount) {
			debtors = debtors[1:]
		}
		if models.IsZeroAmount(creditor.amount) {
			creditors = creditors[1:]
		}
	}

	return settlements, nil
}
