package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkarkhanis/splitex/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func participants(userIDs ...string) []models.Participant {
	out := make([]models.Participant, len(userIDs))
	for i, id := range userIDs {
		out[i] = models.Participant{EventID: "ev1", UserID: id}
	}
	return out
}

func equalExpense(paidBy string, amount string, userIDs ...string) models.Expense {
	entities := make([]models.Entity, len(userIDs))
	for i, id := range userIDs {
		entities[i] = models.UserEntity(id)
	}
	splits, err := EqualSplits(dec(amount), "GBP", entities)
	if err != nil {
		panic(err)
	}
	return models.Expense{
		EventID:   "ev1",
		Amount:    dec(amount),
		Currency:  "GBP",
		PaidBy:    paidBy,
		SplitType: models.SplitEqual,
		Splits:    splits,
	}
}

func balanceOf(t *testing.T, balances []models.Balance, entity models.Entity) decimal.Decimal {
	t.Helper()
	for _, b := range balances {
		if b.Entity == entity {
			return b.Amount
		}
	}
	t.Fatalf("no balance for %s", entity)
	return decimal.Zero
}

func TestComputeBalancesEqualSplit(t *testing.T) {
	expenses := []models.Expense{equalExpense("alice", "90", "alice", "bob", "carol")}

	balances := ComputeBalances("GBP", expenses, participants("alice", "bob", "carol"), nil)

	require.Len(t, balances, 3)
	assert.True(t, balanceOf(t, balances, models.UserEntity("alice")).Equal(dec("60")))
	assert.True(t, balanceOf(t, balances, models.UserEntity("bob")).Equal(dec("-30")))
	assert.True(t, balanceOf(t, balances, models.UserEntity("carol")).Equal(dec("-30")))
}

func TestComputeBalancesSumToZero(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("alice", "100", "alice", "bob", "carol"),
		equalExpense("bob", "45.50", "bob", "carol"),
		equalExpense("carol", "12.99", "alice", "carol"),
	}

	balances := ComputeBalances("GBP", expenses, participants("alice", "bob", "carol"), nil)

	sum := decimal.Zero
	for _, b := range balances {
		sum = sum.Add(b.Amount)
	}
	assert.True(t, models.IsZeroAmount(sum), "net balances should cancel out, got %s", sum)
}

func TestComputeBalancesSkipsPrivateExpenses(t *testing.T) {
	private := equalExpense("alice", "500", "alice", "bob")
	private.IsPrivate = true
	expenses := []models.Expense{
		private,
		equalExpense("alice", "40", "alice", "bob"),
	}

	balances := ComputeBalances("GBP", expenses, participants("alice", "bob"), nil)

	assert.True(t, balanceOf(t, balances, models.UserEntity("alice")).Equal(dec("20")))
	assert.True(t, balanceOf(t, balances, models.UserEntity("bob")).Equal(dec("-20")))
}

func TestComputeBalancesCollapsesGroupMembers(t *testing.T) {
	groups := []models.Group{{
		ID:          "grp1",
		EventID:     "ev1",
		Members:     []string{"bob", "carol"},
		PayerUserID: "bob",
	}}
	splits := []models.ExpenseSplit{
		{Entity: models.UserEntity("alice"), Amount: dec("30")},
		{Entity: models.GroupEntity("grp1"), Amount: dec("30")},
	}
	expenses := []models.Expense{{
		EventID:   "ev1",
		Amount:    dec("60"),
		Currency:  "GBP",
		PaidBy:    "alice",
		SplitType: models.SplitCustom,
		Splits:    splits,
	}}

	balances := ComputeBalances("GBP", expenses, participants("alice", "bob", "carol"), groups)

	// Two ledger lines: alice and the group. Neither bob nor carol has
	// their own line.
	require.Len(t, balances, 2)
	assert.True(t, balanceOf(t, balances, models.UserEntity("alice")).Equal(dec("30")))
	assert.True(t, balanceOf(t, balances, models.GroupEntity("grp1")).Equal(dec("-30")))
}

func TestComputeBalancesGroupMemberPaysForGroup(t *testing.T) {
	groups := []models.Group{{
		ID:          "grp1",
		EventID:     "ev1",
		Members:     []string{"bob", "carol"},
		PayerUserID: "bob",
	}}
	// bob pays, so the credit lands on the group's ledger line.
	expenses := []models.Expense{{
		EventID:   "ev1",
		Amount:    dec("90"),
		Currency:  "GBP",
		PaidBy:    "bob",
		SplitType: models.SplitCustom,
		Splits: []models.ExpenseSplit{
			{Entity: models.UserEntity("alice"), Amount: dec("45")},
			{Entity: models.GroupEntity("grp1"), Amount: dec("45")},
		},
	}}

	balances := ComputeBalances("GBP", expenses, participants("alice", "bob", "carol"), groups)

	assert.True(t, balanceOf(t, balances, models.UserEntity("alice")).Equal(dec("-45")))
	assert.True(t, balanceOf(t, balances, models.GroupEntity("grp1")).Equal(dec("45")))
}

func TestComputeBalancesPaidOnBehalfOf(t *testing.T) {
	exp := equalExpense("alice", "90", "alice", "bob", "carol")
	exp.PaidOnBehalfOf = []models.Entity{models.UserEntity("carol")}

	balances := ComputeBalances("GBP", []models.Expense{exp}, participants("alice", "bob", "carol"), nil)

	// carol's fronted share earns alice no ledger credit: alice is
	// credited 90-30=60 and debited her own 30 share.
	assert.True(t, balanceOf(t, balances, models.UserEntity("alice")).Equal(dec("30")))
	assert.True(t, balanceOf(t, balances, models.UserEntity("bob")).Equal(dec("-30")))
	// carol still owes her share on the ledger; the fronted amount is
	// between her and alice off-ledger.
	assert.True(t, balanceOf(t, balances, models.UserEntity("carol")).Equal(dec("-30")))
}

func TestComputeBalancesDropsZeroBalances(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("alice", "50", "alice", "bob"),
		equalExpense("bob", "50", "alice", "bob"),
	}

	balances := ComputeBalances("GBP", expenses, participants("alice", "bob"), nil)

	assert.Empty(t, balances)
}

func TestComputeBalancesDeterministicOrder(t *testing.T) {
	expenses := []models.Expense{
		equalExpense("carol", "60", "alice", "bob", "carol"),
	}

	first := ComputeBalances("GBP", expenses, participants("carol", "alice", "bob"), nil)
	second := ComputeBalances("GBP", expenses, participants("bob", "carol", "alice"), nil)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Entity, second[i].Entity)
		assert.True(t, first[i].Amount.Equal(second[i].Amount))
	}
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].Entity.Key(), first[i].Entity.Key())
	}
}

func TestComputeBalancesCustomSplitsAcceptedAsAuthored(t *testing.T) {
	// Custom splits that don't sum to the total still enter the ledger
	// as written.
	expenses := []models.Expense{{
		EventID:   "ev1",
		Amount:    dec("100"),
		Currency:  "GBP",
		PaidBy:    "alice",
		SplitType: models.SplitCustom,
		Splits: []models.ExpenseSplit{
			{Entity: models.UserEntity("alice"), Amount: dec("10")},
			{Entity: models.UserEntity("bob"), Amount: dec("20")},
		},
	}}

	balances := ComputeBalances("GBP", expenses, participants("alice", "bob"), nil)

	assert.True(t, balanceOf(t, balances, models.UserEntity("alice")).Equal(dec("90")))
	assert.True(t, balanceOf(t, balances, models.UserEntity("bob")).Equal(dec("-20")))
}
