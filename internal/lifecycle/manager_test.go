package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkarkhanis/splitex/internal/gateway"
	"github.com/vkarkhanis/splitex/internal/metrics"
	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/realtime"
	"github.com/vkarkhanis/splitex/internal/storage"
	"github.com/vkarkhanis/splitex/internal/storage/sqlite"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestManager(t *testing.T, sel *gateway.Selector) (*Manager, storage.Store) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	if sel == nil {
		sel = gateway.NewSelector(gateway.ModeMock, "test", false, gateway.NewMock(), nil)
	}
	m := NewManager(store, sel, realtime.Nop{}, metrics.New(prometheus.NewRegistry()), time.Second)
	return m, store
}

// seedPlan creates an event in payment state with one pending settlement
// bob -> alice for 30.
func seedPlan(t *testing.T, store storage.Store, requireApproval bool) (*models.Event, *models.Settlement) {
	t.Helper()
	ctx := context.Background()

	event := &models.Event{
		Name:            "Flat 4B",
		Currency:        "GBP",
		CreatedBy:       "alice",
		RequireApproval: requireApproval,
	}
	require.NoError(t, store.CreateEvent(ctx, event))

	settlement := &models.Settlement{
		EventID:    event.ID,
		From:       models.UserEntity("bob"),
		To:         models.UserEntity("alice"),
		FromUserID: "bob",
		ToUserID:   "alice",
		Amount:     dec("30"),
		Currency:   "GBP",
		Status:     models.SettlementPending,
		CreatedAt:  time.Now().Unix(),
	}

	event.PlanVersion = 1
	if requireApproval {
		event.Status = models.EventReview
	} else {
		event.Status = models.EventPayment
	}
	require.NoError(t, store.SaveSettlementPlan(ctx, event, []*models.Settlement{settlement}))
	return event, settlement
}

func TestPayOnlyPayerMayCall(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	_, err := m.Pay(context.Background(), settlement.ID, "alice", gateway.ProviderMock, false)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = m.Pay(context.Background(), settlement.ID, "mallory", gateway.ProviderMock, false)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestPayTransitionsToInitiated(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	got, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementInitiated, got.Status)
	assert.Equal(t, "mock", got.PaymentMethod)
	assert.True(t, strings.HasPrefix(got.PaymentID, "mock_"))
	require.NotNil(t, got.InitiatedAt)

	stored, err := store.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementInitiated, stored.Status)
}

func TestPayRejectedFromInitiated(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	_, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)

	_, err = m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestPayBlockedWhileAwaitingApproval(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, true)

	_, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	assert.ErrorIs(t, err, models.ErrApprovalPending)
}

func TestPayGatewayFailureParksSettlementFailed(t *testing.T) {
	sel := gateway.NewSelector(gateway.ModeLive, "production", false, gateway.NewMock(),
		map[gateway.Provider]gateway.Gateway{
			gateway.ProviderStripe: gateway.NewStripe("", time.Second),
		})
	m, store := newTestManager(t, sel)
	_, settlement := seedPlan(t, store, false)

	got, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderStripe, true)
	assert.ErrorIs(t, err, ErrGateway)
	require.NotNil(t, got)
	assert.Equal(t, models.SettlementFailed, got.Status)
	assert.Contains(t, got.FailureReason, "Stripe is not configured")
	require.NotNil(t, got.FailedAt)

	stored, err := store.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementFailed, stored.Status)
}

func TestRetryIncrementsCounter(t *testing.T) {
	sel := gateway.NewSelector(gateway.ModeLive, "production", false, gateway.NewMock(),
		map[gateway.Provider]gateway.Gateway{
			gateway.ProviderStripe: gateway.NewStripe("", time.Second),
		})
	m, store := newTestManager(t, sel)
	_, settlement := seedPlan(t, store, false)

	// First attempt fails.
	_, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderStripe, true)
	require.ErrorIs(t, err, ErrGateway)

	// Retry against the mock provider succeeds and bumps the counter.
	got, err := m.Retry(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementInitiated, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Empty(t, got.FailureReason)
}

func TestRetryOnlyPayerFromInitiatedOrFailed(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	_, err := m.Retry(context.Background(), settlement.ID, "alice", gateway.ProviderMock, false)
	assert.ErrorIs(t, err, models.ErrForbidden)

	// Pending is not retryable; it hasn't been attempted yet.
	_, err = m.Retry(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestApproveCompletesAndSettlesEvent(t *testing.T) {
	m, store := newTestManager(t, nil)
	event, settlement := seedPlan(t, store, false)

	_, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)

	got, err := m.Approve(context.Background(), settlement.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// The last settlement completing flips the event to settled.
	updated, err := store.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventSettled, updated.Status)
}

func TestApproveOnlyPayee(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	_, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)

	_, err = m.Approve(context.Background(), settlement.ID, "bob")
	assert.ErrorIs(t, err, models.ErrForbidden)
}

func TestApproveTwiceRejected(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	_, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), settlement.ID, "alice")
	require.NoError(t, err)

	_, err = m.Approve(context.Background(), settlement.ID, "alice")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestHandleCallbackCompletes(t *testing.T) {
	m, store := newTestManager(t, nil)
	event, settlement := seedPlan(t, store, false)

	paid, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)

	err = m.HandleCallback(context.Background(), Callback{
		CallbackID:   "cb_1",
		SettlementID: settlement.ID,
		PaymentID:    paid.PaymentID,
		Status:       "completed",
	})
	require.NoError(t, err)

	stored, err := store.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, stored.Status)

	updated, err := store.GetEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventSettled, updated.Status)
}

func TestHandleCallbackDuplicateIsNoop(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	paid, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)

	fail := Callback{
		CallbackID:    "cb_dup",
		SettlementID:  settlement.ID,
		PaymentID:     paid.PaymentID,
		Status:        "failed",
		FailureReason: "card declined",
	}
	require.NoError(t, m.HandleCallback(context.Background(), fail))

	stored, err := store.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementFailed, stored.Status)
	assert.Equal(t, "card declined", stored.FailureReason)

	// Redelivery of the same callback after a retry must not clobber the
	// newer state.
	retried, err := m.Retry(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)
	require.NoError(t, m.HandleCallback(context.Background(), fail))

	stored, err = store.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementInitiated, stored.Status)
	assert.Equal(t, retried.PaymentID, stored.PaymentID)
}

// flakyStore fails a set number of callback writes before letting them
// through, standing in for transient persistence errors.
type flakyStore struct {
	storage.Store
	failures int
}

func (s *flakyStore) ApplySettlementCallback(ctx context.Context, callbackID string, settlement *models.Settlement) (bool, error) {
	if s.failures > 0 {
		s.failures--
		return false, errors.New("disk I/O error")
	}
	return s.Store.ApplySettlementCallback(ctx, callbackID, settlement)
}

func TestHandleCallbackRetriesAfterPersistenceError(t *testing.T) {
	_, base := newTestManager(t, nil)
	flaky := &flakyStore{Store: base, failures: 1}
	sel := gateway.NewSelector(gateway.ModeMock, "test", false, gateway.NewMock(), nil)
	m := NewManager(flaky, sel, realtime.Nop{}, metrics.New(prometheus.NewRegistry()), time.Second)
	_, settlement := seedPlan(t, base, false)

	paid, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)

	done := Callback{
		CallbackID:   "cb_flaky",
		SettlementID: settlement.ID,
		PaymentID:    paid.PaymentID,
		Status:       "completed",
	}

	// The write fails, so the error surfaces and the callback ID stays
	// unclaimed.
	err = m.HandleCallback(context.Background(), done)
	require.Error(t, err)

	stored, err := base.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementInitiated, stored.Status)

	// The provider's redelivery of the identical callback goes through.
	require.NoError(t, m.HandleCallback(context.Background(), done))

	stored, err = base.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, stored.Status)
}

func TestHandleCallbackFailedOutcomePersistenceErrorSurfaces(t *testing.T) {
	_, base := newTestManager(t, nil)
	flaky := &flakyStore{Store: base, failures: 1}
	sel := gateway.NewSelector(gateway.ModeMock, "test", false, gateway.NewMock(), nil)
	m := NewManager(flaky, sel, realtime.Nop{}, metrics.New(prometheus.NewRegistry()), time.Second)
	_, settlement := seedPlan(t, base, false)

	paid, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)

	fail := Callback{
		CallbackID:    "cb_fail_flaky",
		SettlementID:  settlement.ID,
		PaymentID:     paid.PaymentID,
		Status:        "failed",
		FailureReason: "card declined",
	}
	require.Error(t, m.HandleCallback(context.Background(), fail))

	require.NoError(t, m.HandleCallback(context.Background(), fail))
	stored, err := base.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementFailed, stored.Status)
	assert.Equal(t, "card declined", stored.FailureReason)
}

func TestHandleCallbackStalePaymentIgnored(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	_, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)

	err = m.HandleCallback(context.Background(), Callback{
		CallbackID:   "cb_stale",
		SettlementID: settlement.ID,
		PaymentID:    "mock_old_attempt",
		Status:       "completed",
	})
	require.NoError(t, err)

	stored, err := store.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementInitiated, stored.Status)
}

func TestHandleCallbackValidation(t *testing.T) {
	m, _ := newTestManager(t, nil)

	err := m.HandleCallback(context.Background(), Callback{SettlementID: "st1", Status: "completed"})
	assert.ErrorIs(t, err, models.ErrValidation)

	err = m.HandleCallback(context.Background(), Callback{CallbackID: "cb_x", Status: "completed"})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestHandleCallbackUnknownStatus(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	err := m.HandleCallback(context.Background(), Callback{
		CallbackID:   "cb_weird",
		SettlementID: settlement.ID,
		Status:       "refunded",
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestHandleCallbackTerminalIsNoop(t *testing.T) {
	m, store := newTestManager(t, nil)
	_, settlement := seedPlan(t, store, false)

	paid, err := m.Pay(context.Background(), settlement.ID, "bob", gateway.ProviderMock, false)
	require.NoError(t, err)
	_, err = m.Approve(context.Background(), settlement.ID, "alice")
	require.NoError(t, err)

	err = m.HandleCallback(context.Background(), Callback{
		CallbackID:   "cb_late",
		SettlementID: settlement.ID,
		PaymentID:    paid.PaymentID,
		Status:       "failed",
	})
	require.NoError(t, err)

	stored, err := store.GetSettlement(context.Background(), settlement.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SettlementCompleted, stored.Status)
}
