// Package lifecycle owns the settlement state machine: pending →
// initiated → completed | failed, with retry, plus the terminated state
// applied when an event is deleted.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vkarkhanis/splitex/internal/gateway"
	"github.com/vkarkhanis/splitex/internal/locks"
	"github.com/vkarkhanis/splitex/internal/metrics"
	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/realtime"
	"github.com/vkarkhanis/splitex/internal/storage"
)

// ErrGateway wraps payment provider failures. The settlement is already
// parked in failed state when this is returned; the payer can retry.
var ErrGateway = errors.New("payment gateway failure")

// Manager drives settlements through their lifecycle. All transitions on
// one settlement are serialized through a striped lock keyed by
// settlement ID, so concurrent pay calls have a single winner.
type Manager struct {
	store   storage.Store
	gateway *gateway.Selector
	emitter realtime.Emitter
	metrics *metrics.Metrics

	gatewayTimeout time.Duration

	locks locks.Striped
	now   func() time.Time
}

// NewManager creates a lifecycle manager. gatewayTimeout bounds every
// provider call so a dead provider fails the settlement instead of
// leaving it hanging.
func NewManager(store storage.Store, gw *gateway.Selector, emitter realtime.Emitter, m *metrics.Metrics, gatewayTimeout time.Duration) *Manager {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 30 * time.Second
	}
	return &Manager{
		store:          store,
		gateway:        gw,
		emitter:        emitter,
		metrics:        m,
		gatewayTimeout: gatewayTimeout,
		now:            time.Now,
	}
}

// Pay starts a payment attempt. Only the settlement's FromUserID may
// call; valid from pending or failed. useReal requests the live provider,
// honored only where gateway policy allows.
func (m *Manager) Pay(ctx context.Context, settlementID, actorID string, provider gateway.Provider, useReal bool) (*models.Settlement, error) {
	unlock := m.locks.Lock(settlementID)
	defer unlock()

	settlement, err := m.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.FromUserID != actorID {
		return nil, fmt.Errorf("user %s is not the payer of settlement %s: %w", actorID, settlementID, models.ErrForbidden)
	}
	if settlement.Status != models.SettlementPending && settlement.Status != models.SettlementFailed {
		return nil, &models.TransitionError{SettlementID: settlementID, From: settlement.Status, Action: "pay"}
	}
	if err := m.checkApprovalGate(ctx, settlement); err != nil {
		return nil, err
	}

	return m.startPayment(ctx, settlement, provider, useReal)
}

// Retry re-invokes the gateway for a stuck or failed payment, bumping the
// retry counter. Only the payer may call; valid from initiated or failed.
func (m *Manager) Retry(ctx context.Context, settlementID, actorID string, provider gateway.Provider, useReal bool) (*models.Settlement, error) {
	unlock := m.locks.Lock(settlementID)
	defer unlock()

	settlement, err := m.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.FromUserID != actorID {
		return nil, fmt.Errorf("user %s is not the payer of settlement %s: %w", actorID, settlementID, models.ErrForbidden)
	}
	if settlement.Status != models.SettlementInitiated && settlement.Status != models.SettlementFailed {
		return nil, &models.TransitionError{SettlementID: settlementID, From: settlement.Status, Action: "retry"}
	}

	settlement.RetryCount++
	return m.startPayment(ctx, settlement, provider, useReal)
}

func (m *Manager) startPayment(ctx context.Context, settlement *models.Settlement, provider gateway.Provider, useReal bool) (*models.Settlement, error) {
	amount := settlement.Amount
	currency := settlement.Currency
	if settlement.SettlementAmount != nil {
		amount = *settlement.SettlementAmount
		currency = settlement.SettlementCurrency
	}

	gwCtx, cancel := context.WithTimeout(ctx, m.gatewayTimeout)
	defer cancel()

	intent, err := m.gateway.StartPayment(gwCtx, provider, gateway.PaymentRequest{
		SettlementID: settlement.ID,
		Amount:       amount,
		Currency:     currency,
		Description:  fmt.Sprintf("Settlement %s -> %s", settlement.From, settlement.To),
	}, useReal)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(gwCtx.Err(), context.DeadlineExceeded) {
			reason = "gateway timeout"
		}
		m.applyFailure(ctx, settlement, reason)
		m.metrics.GatewayCalls.WithLabelValues(string(provider), "error").Inc()
		return settlement, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	m.metrics.GatewayCalls.WithLabelValues(string(intent.Provider), "ok").Inc()

	now := m.now().Unix()
	settlement.Status = models.SettlementInitiated
	settlement.InitiatedAt = &now
	settlement.PaymentMethod = string(intent.Provider)
	settlement.PaymentID = intent.PaymentID
	settlement.CheckoutURL = intent.CheckoutURL
	settlement.FailureReason = ""

	if err := m.store.UpdateSettlement(ctx, settlement); err != nil {
		return nil, err
	}
	m.transitioned(settlement)
	return settlement, nil
}

// Approve records the payee's confirmation of receipt. Only the
// settlement's ToUserID may call; valid from initiated only. Approving an
// already-completed settlement is an error, not a silent success.
func (m *Manager) Approve(ctx context.Context, settlementID, actorID string) (*models.Settlement, error) {
	unlock := m.locks.Lock(settlementID)
	defer unlock()

	settlement, err := m.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.ToUserID != actorID {
		return nil, fmt.Errorf("user %s is not the payee of settlement %s: %w", actorID, settlementID, models.ErrForbidden)
	}
	if settlement.Status != models.SettlementInitiated {
		return nil, &models.TransitionError{SettlementID: settlementID, From: settlement.Status, Action: "approve"}
	}

	now := m.now().Unix()
	settlement.Status = models.SettlementCompleted
	settlement.CompletedAt = &now
	if err := m.store.UpdateSettlement(ctx, settlement); err != nil {
		return nil, err
	}
	m.transitioned(settlement)

	if err := m.settleEventIfDone(ctx, settlement.EventID); err != nil {
		// The settlement itself completed; event bookkeeping failing is
		// logged, not surfaced as a payment error.
		slog.Error("failed to update event after settlement completion",
			"event_id", settlement.EventID, "error", err)
	}
	return settlement, nil
}

// Callback is one gateway notification about a payment outcome.
type Callback struct {
	// CallbackID is the provider's delivery ID, used for deduplication.
	CallbackID   string
	SettlementID string
	PaymentID    string
	// Status is "completed" or "failed".
	Status        string
	FailureReason string
}

// HandleCallback applies a gateway outcome to a settlement. The callback
// ID is consumed in the same store write as the outcome, so a delivery
// that fails to persist leaves the ID unclaimed and the provider's retry
// goes through; only a durably applied ID makes later deliveries no-ops.
func (m *Manager) HandleCallback(ctx context.Context, cb Callback) error {
	if cb.CallbackID == "" || cb.SettlementID == "" {
		return &models.ValidationError{Field: "callback", Message: "callback_id and settlement_id are required"}
	}

	unlock := m.locks.Lock(cb.SettlementID)
	defer unlock()

	settlement, err := m.store.GetSettlement(ctx, cb.SettlementID)
	if err != nil {
		return err
	}
	if cb.PaymentID != "" && settlement.PaymentID != cb.PaymentID {
		slog.Warn("gateway callback for stale payment ignored",
			"settlement_id", cb.SettlementID, "payment_id", cb.PaymentID)
		return nil
	}
	if settlement.Status.Terminal() {
		return nil
	}

	now := m.now().Unix()
	switch cb.Status {
	case "failed":
		settlement.Status = models.SettlementFailed
		settlement.FailedAt = &now
		settlement.FailureReason = cb.FailureReason
	case "completed":
		settlement.Status = models.SettlementCompleted
		settlement.CompletedAt = &now
	default:
		return &models.ValidationError{Field: "status", Message: fmt.Sprintf("unknown callback status %q", cb.Status)}
	}

	applied, err := m.store.ApplySettlementCallback(ctx, cb.CallbackID, settlement)
	if err != nil {
		return err
	}
	if !applied {
		slog.Info("duplicate gateway callback skipped", "callback_id", cb.CallbackID)
		return nil
	}
	m.transitioned(settlement)

	if settlement.Status == models.SettlementCompleted {
		if err := m.settleEventIfDone(ctx, settlement.EventID); err != nil {
			slog.Error("failed to update event after settlement completion",
				"event_id", settlement.EventID, "error", err)
		}
	}
	return nil
}

func (m *Manager) applyFailure(ctx context.Context, settlement *models.Settlement, reason string) {
	now := m.now().Unix()
	settlement.Status = models.SettlementFailed
	settlement.FailedAt = &now
	settlement.FailureReason = reason
	if err := m.store.UpdateSettlement(ctx, settlement); err != nil {
		slog.Error("failed to persist settlement failure", "settlement_id", settlement.ID, "error", err)
		return
	}
	m.transitioned(settlement)
}

// checkApprovalGate rejects payment while the event's plan still awaits
// entity approvals.
func (m *Manager) checkApprovalGate(ctx context.Context, settlement *models.Settlement) error {
	event, err := m.store.GetEvent(ctx, settlement.EventID)
	if err != nil {
		return err
	}
	if event.RequireApproval && event.Status == models.EventReview {
		return fmt.Errorf("event %s: %w", event.ID, models.ErrApprovalPending)
	}
	return nil
}

// settleEventIfDone flips the event to settled when no open settlement
// remains in its current plan.
func (m *Manager) settleEventIfDone(ctx context.Context, eventID string) error {
	event, err := m.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.Status == models.EventSettled || event.Status == models.EventClosed {
		return nil
	}

	settlements, err := m.store.ListSettlementsByEvent(ctx, eventID)
	if err != nil {
		return err
	}
	for _, s := range settlements {
		if s.PlanVersion == event.PlanVersion && s.Status.Open() {
			return nil
		}
	}

	event.Status = models.EventSettled
	if err := m.store.UpdateEvent(ctx, event); err != nil {
		return err
	}
	m.emitter.EmitToEvent(eventID, "event:updated", event)
	slog.Info("event settled", "event_id", eventID)
	return nil
}

func (m *Manager) transitioned(settlement *models.Settlement) {
	m.metrics.SettlementTransitions.WithLabelValues(string(settlement.Status)).Inc()
	m.emitter.EmitToEvent(settlement.EventID, "settlement:updated", settlement)
	slog.Info("settlement transition",
		"settlement_id", settlement.ID,
		"event_id", settlement.EventID,
		"status", settlement.Status,
		"retry_count", settlement.RetryCount,
	)
}
