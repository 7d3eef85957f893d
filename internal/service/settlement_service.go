package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vkarkhanis/splitex/internal/entitlement"
	"github.com/vkarkhanis/splitex/internal/fx"
	"github.com/vkarkhanis/splitex/internal/gateway"
	"github.com/vkarkhanis/splitex/internal/ledger"
	"github.com/vkarkhanis/splitex/internal/lifecycle"
	"github.com/vkarkhanis/splitex/internal/locks"
	"github.com/vkarkhanis/splitex/internal/metrics"
	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/planner"
	"github.com/vkarkhanis/splitex/internal/realtime"
	"github.com/vkarkhanis/splitex/internal/storage"
)

// SettlementService generates settlement plans and fronts the lifecycle
// manager for payment actions.
type SettlementService struct {
	store        storage.Store
	events       *EventService
	entitlements *entitlement.Service
	resolver     *fx.Resolver
	lifecycle    *lifecycle.Manager
	emitter      realtime.Emitter
	metrics      *metrics.Metrics

	// genLocks serializes plan generation per event. The persisted plan
	// version is the cross-process guard; this keeps one process from
	// racing itself.
	genLocks locks.Striped
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(store storage.Store, events *EventService, ent *entitlement.Service,
	resolver *fx.Resolver, lm *lifecycle.Manager, emitter realtime.Emitter, m *metrics.Metrics) *SettlementService {
	return &SettlementService{
		store:        store,
		events:       events,
		entitlements: ent,
		resolver:     resolver,
		lifecycle:    lm,
		emitter:      emitter,
		metrics:      m,
	}
}

// Balances recomputes the event's entity balances from its expenses.
func (s *SettlementService) Balances(ctx context.Context, actorID, eventID string) ([]models.Balance, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.events.requireParticipant(ctx, eventID, actorID); err != nil {
		return nil, err
	}

	expenses, participants, groups, err := s.loadLedgerInputs(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return ledger.ComputeBalances(event.Currency, expenses, participants, groups), nil
}

// GeneratePlan computes balances, reduces them to a minimal transfer set,
// annotates cross-currency amounts, and persists the batch atomically. A
// regenerated plan supersedes the previous plan's pending settlements.
//
// A concurrent generation for the same event is detected via the stored
// plan version and treated as a no-op: the winner's plan is returned.
func (s *SettlementService) GeneratePlan(ctx context.Context, actorID, eventID string) ([]*models.Settlement, error) {
	unlock := s.genLocks.Lock(eventID)
	defer unlock()

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.events.requireParticipant(ctx, eventID, actorID); err != nil {
		return nil, err
	}
	if event.Status == models.EventSettled || event.Status == models.EventClosed {
		return nil, &models.ValidationError{Field: "status", Message: fmt.Sprintf("cannot generate plan for %s event", event.Status)}
	}
	if event.MultiCurrency() {
		if err := s.entitlements.AssertCapability(ctx, actorID, entitlement.CapMultiCurrencySettlement); err != nil {
			return nil, err
		}
	}

	expenses, participants, groups, err := s.loadLedgerInputs(ctx, eventID)
	if err != nil {
		return nil, err
	}

	balances := ledger.ComputeBalances(event.Currency, expenses, participants, groups)
	settlements, err := planner.Build(ctx, event, balances, groups, s.resolver)
	if err != nil {
		// FX or payer resolution failure: nothing was persisted.
		return nil, err
	}

	event.PlanVersion++
	event.SettlementStale = false
	event.SettlementApprovals = nil
	switch {
	case len(settlements) == 0:
		event.Status = models.EventSettled
	case event.RequireApproval:
		event.Status = models.EventReview
	default:
		event.Status = models.EventPayment
	}

	if err := s.store.SaveSettlementPlan(ctx, event, settlements); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another generation won the version race; its plan is the
			// plan. External retries stay safe.
			slog.Info("concurrent plan generation skipped", "event_id", eventID)
			return s.currentPlan(ctx, eventID)
		}
		return nil, err
	}

	s.metrics.PlansGenerated.Inc()
	s.emitter.EmitToEvent(eventID, "plan:generated", settlements)
	slog.Info("settlement plan generated",
		"event_id", eventID, "plan_version", event.PlanVersion,
		"settlements", len(settlements), "status", event.Status)
	return settlements, nil
}

// ApprovePlan records one entity's approval of the plan under review. The
// actor approves for their own ledger entity (their group's, when they
// are its designated payer). Once every debtor entity approved, the event
// moves to payment.
func (s *SettlementService) ApprovePlan(ctx context.Context, actorID, eventID string) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.events.requireParticipant(ctx, eventID, actorID); err != nil {
		return nil, err
	}
	if !event.RequireApproval || event.Status != models.EventReview {
		return nil, &models.ValidationError{Field: "status", Message: "event has no plan awaiting approval"}
	}

	settlements, err := s.currentPlan(ctx, eventID)
	if err != nil {
		return nil, err
	}

	entity, ok := actorEntity(actorID, settlements)
	if !ok {
		return nil, fmt.Errorf("user %s has no settlement to approve: %w", actorID, models.ErrForbidden)
	}

	if event.SettlementApprovals == nil {
		event.SettlementApprovals = make(map[string]bool)
	}
	event.SettlementApprovals[entity.Key()] = true

	if allDebtorsApproved(event, settlements) {
		event.Status = models.EventPayment
	}
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}

	s.emitter.EmitToEvent(eventID, "plan:approval", map[string]any{
		"entity": entity.Key(),
		"status": event.Status,
	})
	return event, nil
}

// ListSettlements retrieves all settlements for an event.
func (s *SettlementService) ListSettlements(ctx context.Context, actorID, eventID string) ([]*models.Settlement, error) {
	if err := s.events.requireParticipant(ctx, eventID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListSettlementsByEvent(ctx, eventID)
}

// Pay delegates to the lifecycle manager.
func (s *SettlementService) Pay(ctx context.Context, settlementID, actorID string, provider gateway.Provider, useReal bool) (*models.Settlement, error) {
	if provider == "" {
		provider = gateway.ProviderMock
	}
	return s.lifecycle.Pay(ctx, settlementID, actorID, provider, useReal)
}

// Retry delegates to the lifecycle manager.
func (s *SettlementService) Retry(ctx context.Context, settlementID, actorID string, provider gateway.Provider, useReal bool) (*models.Settlement, error) {
	if provider == "" {
		provider = gateway.ProviderMock
	}
	return s.lifecycle.Retry(ctx, settlementID, actorID, provider, useReal)
}

// Approve delegates to the lifecycle manager.
func (s *SettlementService) Approve(ctx context.Context, settlementID, actorID string) (*models.Settlement, error) {
	return s.lifecycle.Approve(ctx, settlementID, actorID)
}

// HandleGatewayCallback delegates to the lifecycle manager.
func (s *SettlementService) HandleGatewayCallback(ctx context.Context, cb lifecycle.Callback) error {
	return s.lifecycle.HandleCallback(ctx, cb)
}

func (s *SettlementService) loadLedgerInputs(ctx context.Context, eventID string) ([]models.Expense, []models.Participant, []models.Group, error) {
	expenses, err := s.store.ListExpenses(ctx, eventID)
	if err != nil {
		return nil, nil, nil, err
	}
	participants, err := s.store.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, nil, nil, err
	}
	groups, err := s.store.ListGroups(ctx, eventID)
	if err != nil {
		return nil, nil, nil, err
	}
	return expenses, participants, groups, nil
}

// currentPlan returns only the settlements belonging to the event's
// newest plan version.
func (s *SettlementService) currentPlan(ctx context.Context, eventID string) ([]*models.Settlement, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.ListSettlementsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var current []*models.Settlement
	for _, settlement := range all {
		if settlement.PlanVersion == event.PlanVersion {
			current = append(current, settlement)
		}
	}
	return current, nil
}

// actorEntity finds the debtor entity the actor pays for in the plan.
func actorEntity(actorID string, settlements []*models.Settlement) (models.Entity, bool) {
	for _, settlement := range settlements {
		if settlement.FromUserID == actorID {
			return settlement.From, true
		}
	}
	return models.Entity{}, false
}

// allDebtorsApproved reports whether every debtor entity in the plan has
// an approval recorded.
func allDebtorsApproved(event *models.Event, settlements []*models.Settlement) bool {
	for _, settlement := range settlements {
		if !event.SettlementApprovals[settlement.From.Key()] {
			return false
		}
	}
	return true
}
