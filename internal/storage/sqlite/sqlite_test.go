package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/storage"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func createTestEvent(t *testing.T, store *SQLiteStore) *models.Event {
	t.Helper()
	event := &models.Event{
		Name:      "Goa Trip",
		Currency:  "INR",
		CreatedBy: "alice",
	}
	require.NoError(t, store.CreateEvent(context.Background(), event))
	return event
}

func TestUserRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("alice@example.com", "Alice", "hash")
	require.NoError(t, store.CreateUser(ctx, user))
	require.NotEmpty(t, user.ID)

	byID, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", byID.Email)
	assert.Equal(t, models.PlanFree, byID.Plan)

	byEmail, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	plan, err := store.GetUserPlan(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, plan)

	_, err = store.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEventRoundTripWithFxRates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := &models.Event{
		Name:               "Euro Trip",
		Currency:           "EUR",
		SettlementCurrency: "GBP",
		FxRateMode:         models.FxPredefined,
		PredefinedFxRates:  map[string]decimal.Decimal{"EUR_GBP": dec("0.85")},
		RequireApproval:    true,
		CreatedBy:          "alice",
	}
	require.NoError(t, store.CreateEvent(ctx, event))

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Euro Trip", got.Name)
	assert.Equal(t, models.EventActive, got.Status)
	assert.True(t, got.RequireApproval)
	require.Contains(t, got.PredefinedFxRates, "EUR_GBP")
	assert.True(t, got.PredefinedFxRates["EUR_GBP"].Equal(dec("0.85")))
}

func TestUpdateEventPersistsApprovals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	event.Status = models.EventReview
	event.SettlementApprovals = map[string]bool{
		models.UserEntity("bob").Key():        true,
		models.GroupEntity("grp1").Key():      true,
		models.UserEntity("unapproved").Key(): false,
	}
	require.NoError(t, store.UpdateEvent(ctx, event))

	got, err := store.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventReview, got.Status)
	assert.True(t, got.SettlementApprovals[models.UserEntity("bob").Key()])
	assert.True(t, got.SettlementApprovals[models.GroupEntity("grp1").Key()])
	assert.False(t, got.SettlementApprovals[models.UserEntity("unapproved").Key()])
}

func TestParticipantsAndGroups(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	require.NoError(t, store.AddParticipant(ctx, &models.Participant{EventID: event.ID, UserID: "alice"}))
	require.NoError(t, store.AddParticipant(ctx, &models.Participant{EventID: event.ID, UserID: "bob"}))
	// Re-adding is a no-op, not an error.
	require.NoError(t, store.AddParticipant(ctx, &models.Participant{EventID: event.ID, UserID: "bob"}))

	participants, err := store.ListParticipants(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 2)

	group := &models.Group{
		EventID:     event.ID,
		Name:        "Sharma family",
		Members:     []string{"alice", "bob"},
		PayerUserID: "alice",
	}
	require.NoError(t, store.CreateGroup(ctx, group))

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Members)
	assert.Equal(t, "alice", got.PayerUserID)

	groups, err := store.ListGroups(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, group.ID, groups[0].ID)
}

func TestExpenseRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	expense := &models.Expense{
		EventID:   event.ID,
		Title:     "Dinner",
		Amount:    dec("90.50"),
		Currency:  "INR",
		PaidBy:    "alice",
		SplitType: models.SplitEqual,
		Splits: []models.ExpenseSplit{
			{Entity: models.UserEntity("alice"), Amount: dec("45.25")},
			{Entity: models.UserEntity("bob"), Amount: dec("45.25")},
		},
		PaidOnBehalfOf: []models.Entity{models.UserEntity("bob")},
		CreatedBy:      "alice",
	}
	require.NoError(t, store.CreateExpense(ctx, expense))

	got, err := store.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("90.50")))
	require.Len(t, got.Splits, 2)
	assert.True(t, got.BehalfOf(models.UserEntity("bob")))

	got.Title = "Dinner at Leela"
	got.Splits = got.Splits[:1]
	got.PaidOnBehalfOf = nil
	require.NoError(t, store.UpdateExpense(ctx, got))

	updated, err := store.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dinner at Leela", updated.Title)
	assert.Len(t, updated.Splits, 1)
	assert.Empty(t, updated.PaidOnBehalfOf)

	require.NoError(t, store.DeleteExpense(ctx, expense.ID))
	_, err = store.GetExpense(ctx, expense.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func pendingSettlement(eventID string) *models.Settlement {
	return &models.Settlement{
		EventID:    eventID,
		From:       models.UserEntity("bob"),
		To:         models.UserEntity("alice"),
		FromUserID: "bob",
		ToUserID:   "alice",
		Amount:     dec("30"),
		Currency:   "INR",
		Status:     models.SettlementPending,
		CreatedAt:  1700000000,
	}
}

func TestSaveSettlementPlanVersionConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	event.PlanVersion = 1
	event.Status = models.EventPayment
	require.NoError(t, store.SaveSettlementPlan(ctx, event, []*models.Settlement{pendingSettlement(event.ID)}))

	// A second generation that read the same starting version loses.
	stale := *event
	stale.PlanVersion = 1
	err := store.SaveSettlementPlan(ctx, &stale, []*models.Settlement{pendingSettlement(event.ID)})
	assert.ErrorIs(t, err, storage.ErrConflict)

	// The losing write left nothing behind.
	settlements, err := store.ListSettlementsByEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, settlements, 1)
}

func TestSaveSettlementPlanSupersedesPending(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	event.PlanVersion = 1
	event.Status = models.EventPayment
	require.NoError(t, store.SaveSettlementPlan(ctx, event, []*models.Settlement{pendingSettlement(event.ID)}))

	event.PlanVersion = 2
	require.NoError(t, store.SaveSettlementPlan(ctx, event, []*models.Settlement{pendingSettlement(event.ID)}))

	settlements, err := store.ListSettlementsByEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, settlements, 2)

	byVersion := map[int64]models.SettlementStatus{}
	for _, s := range settlements {
		byVersion[s.PlanVersion] = s.Status
	}
	assert.Equal(t, models.SettlementSuperseded, byVersion[1])
	assert.Equal(t, models.SettlementPending, byVersion[2])
}

func TestUpdateSettlementLifecycleFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	event.PlanVersion = 1
	event.Status = models.EventPayment
	settlement := pendingSettlement(event.ID)
	require.NoError(t, store.SaveSettlementPlan(ctx, event, []*models.Settlement{settlement}))

	now := int64(1700000100)
	settlement.Status = models.SettlementInitiated
	settlement.InitiatedAt = &now
	settlement.PaymentMethod = "mock"
	settlement.PaymentID = "mock_abc"
	settlement.RetryCount = 1
	require.NoError(t, store.UpdateSettlement(ctx, settlement))

	got, err := store.GetSettlement(ctx, settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementInitiated, got.Status)
	require.NotNil(t, got.InitiatedAt)
	assert.Equal(t, now, *got.InitiatedAt)
	assert.Equal(t, "mock_abc", got.PaymentID)
	assert.Equal(t, 1, got.RetryCount)
	assert.Nil(t, got.CompletedAt)
}

func TestSettlementFxFieldsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	converted := dec("8250")
	rate := dec("82.5")
	settlement := pendingSettlement(event.ID)
	settlement.SettlementAmount = &converted
	settlement.SettlementCurrency = "INR"
	settlement.FxRate = &rate

	event.PlanVersion = 1
	event.Status = models.EventPayment
	require.NoError(t, store.SaveSettlementPlan(ctx, event, []*models.Settlement{settlement}))

	got, err := store.GetSettlement(ctx, settlement.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SettlementAmount)
	assert.True(t, got.SettlementAmount.Equal(dec("8250")))
	require.NotNil(t, got.FxRate)
	assert.True(t, got.FxRate.Equal(dec("82.5")))
	assert.Equal(t, "INR", got.SettlementCurrency)
}

func TestDeleteEventTerminatesOpenSettlements(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	open := pendingSettlement(event.ID)
	done := pendingSettlement(event.ID)
	event.PlanVersion = 1
	event.Status = models.EventPayment
	require.NoError(t, store.SaveSettlementPlan(ctx, event, []*models.Settlement{open, done}))

	done.Status = models.SettlementCompleted
	require.NoError(t, store.UpdateSettlement(ctx, done))

	require.NoError(t, store.DeleteEvent(ctx, event.ID))

	_, err := store.GetEvent(ctx, event.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Open settlements terminated; completed ones keep their history.
	gotOpen, err := store.GetSettlement(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementTerminated, gotOpen.Status)

	gotDone, err := store.GetSettlement(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, gotDone.Status)
}

func TestApplySettlementCallback(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	event := createTestEvent(t, store)

	settlement := pendingSettlement(event.ID)
	event.PlanVersion = 1
	event.Status = models.EventPayment
	require.NoError(t, store.SaveSettlementPlan(ctx, event, []*models.Settlement{settlement}))

	now := time.Now().Unix()
	settlement.Status = models.SettlementCompleted
	settlement.CompletedAt = &now

	applied, err := store.ApplySettlementCallback(ctx, "cb_1", settlement)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := store.GetSettlement(ctx, settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, got.Status)

	// A claimed ID writes nothing the second time around.
	settlement.Status = models.SettlementFailed
	applied, err = store.ApplySettlementCallback(ctx, "cb_1", settlement)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err = store.GetSettlement(ctx, settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, got.Status)

	// A fresh ID with a write that cannot land leaves the ID unclaimed.
	missing := pendingSettlement(event.ID)
	_, err = store.ApplySettlementCallback(ctx, "cb_2", missing)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	applied, err = store.ApplySettlementCallback(ctx, "cb_2", settlement)
	require.NoError(t, err)
	assert.True(t, applied)
}
