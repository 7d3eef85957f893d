package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/ledger"
	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/realtime"
	"github.com/vkarkhanis/splitex/internal/storage"
)

// ExpenseService owns expense CRUD and the plan staleness bookkeeping
// that mutations trigger.
type ExpenseService struct {
	store   storage.Store
	events  *EventService
	emitter realtime.Emitter
}

// NewExpenseService creates an ExpenseService.
func NewExpenseService(store storage.Store, events *EventService, emitter realtime.Emitter) *ExpenseService {
	return &ExpenseService{store: store, events: events, emitter: emitter}
}

// SplitInput is one authored split line.
type SplitInput struct {
	Entity models.Entity
	// Amount is used for custom splits.
	Amount decimal.Decimal
	// Ratio is used for ratio splits.
	Ratio decimal.Decimal
}

// ExpenseInput is the caller-supplied expense definition.
type ExpenseInput struct {
	Title          string
	Amount         decimal.Decimal
	PaidBy         string
	IsPrivate      bool
	SplitType      models.SplitType
	Splits         []SplitInput
	PaidOnBehalfOf []models.Entity
}

// AddExpense validates, builds splits, and persists a new expense. A
// mutation while a plan exists marks the plan stale.
func (s *ExpenseService) AddExpense(ctx context.Context, actorID, eventID string, in ExpenseInput) (*models.Expense, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.events.requireParticipant(ctx, eventID, actorID); err != nil {
		return nil, err
	}

	expense, err := s.buildExpense(ctx, event, actorID, in)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateExpense(ctx, expense); err != nil {
		return nil, err
	}
	if err := s.markStale(ctx, event); err != nil {
		return nil, err
	}

	s.emitter.EmitToEvent(eventID, "expense:added", expense)
	slog.Info("expense added", "expense_id", expense.ID, "event_id", eventID, "amount", expense.Amount)
	return expense, nil
}

// UpdateExpense replaces an existing expense with a re-validated one.
func (s *ExpenseService) UpdateExpense(ctx context.Context, actorID, expenseID string, in ExpenseInput) (*models.Expense, error) {
	existing, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, existing.EventID)
	if err != nil {
		return nil, err
	}
	if err := s.events.requireParticipant(ctx, event.ID, actorID); err != nil {
		return nil, err
	}

	expense, err := s.buildExpense(ctx, event, existing.CreatedBy, in)
	if err != nil {
		return nil, err
	}
	expense.ID = existing.ID
	expense.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateExpense(ctx, expense); err != nil {
		return nil, err
	}
	if err := s.markStale(ctx, event); err != nil {
		return nil, err
	}

	s.emitter.EmitToEvent(event.ID, "expense:updated", expense)
	return expense, nil
}

// DeleteExpense removes an expense and marks any live plan stale.
func (s *ExpenseService) DeleteExpense(ctx context.Context, actorID, expenseID string) error {
	expense, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	event, err := s.store.GetEvent(ctx, expense.EventID)
	if err != nil {
		return err
	}
	if err := s.events.requireParticipant(ctx, event.ID, actorID); err != nil {
		return err
	}

	if err := s.store.DeleteExpense(ctx, expenseID); err != nil {
		return err
	}
	if err := s.markStale(ctx, event); err != nil {
		return err
	}

	s.emitter.EmitToEvent(event.ID, "expense:deleted", map[string]string{"expense_id": expenseID})
	return nil
}

// ListExpenses retrieves an event's expenses for a participant.
func (s *ExpenseService) ListExpenses(ctx context.Context, actorID, eventID string) ([]models.Expense, error) {
	if err := s.events.requireParticipant(ctx, eventID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, eventID)
}

func (s *ExpenseService) buildExpense(ctx context.Context, event *models.Event, creatorID string, in ExpenseInput) (*models.Expense, error) {
	if in.Amount.IsNegative() || in.Amount.IsZero() {
		return nil, &models.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if in.PaidBy == "" {
		return nil, &models.ValidationError{Field: "paid_by", Message: "must not be empty"}
	}
	if err := s.events.requireParticipant(ctx, event.ID, in.PaidBy); err != nil {
		return nil, &models.ValidationError{Field: "paid_by", Message: "payer must be an event participant"}
	}

	expense := &models.Expense{
		EventID:        event.ID,
		Title:          in.Title,
		Amount:         in.Amount,
		Currency:       event.Currency,
		PaidBy:         in.PaidBy,
		IsPrivate:      in.IsPrivate,
		SplitType:      in.SplitType,
		PaidOnBehalfOf: in.PaidOnBehalfOf,
		CreatedBy:      creatorID,
	}

	if in.IsPrivate {
		// Private expenses never enter the shared ledger; authored
		// splits are ignored.
		return expense, nil
	}

	switch in.SplitType {
	case models.SplitEqual:
		entities := make([]models.Entity, len(in.Splits))
		for i, split := range in.Splits {
			entities[i] = split.Entity
		}
		splits, err := ledger.EqualSplits(in.Amount, event.Currency, entities)
		if err != nil {
			return nil, err
		}
		expense.Splits = splits
	case models.SplitRatio:
		entries := make([]ledger.RatioEntry, len(in.Splits))
		for i, split := range in.Splits {
			entries[i] = ledger.RatioEntry{Entity: split.Entity, Ratio: split.Ratio}
		}
		splits, err := ledger.RatioSplits(in.Amount, event.Currency, entries)
		if err != nil {
			return nil, err
		}
		expense.Splits = splits
	case models.SplitCustom:
		splits := make([]models.ExpenseSplit, len(in.Splits))
		for i, split := range in.Splits {
			if split.Amount.IsNegative() {
				return nil, &models.ValidationError{Field: "splits", Message: "split amounts must not be negative"}
			}
			splits[i] = models.ExpenseSplit{Entity: split.Entity, Amount: split.Amount}
		}
		expense.Splits = splits
	default:
		return nil, &models.ValidationError{Field: "split_type", Message: fmt.Sprintf("unknown split type %q", in.SplitType)}
	}

	if err := ledger.ValidateSplits(expense); err != nil {
		return nil, err
	}
	return expense, nil
}

// markStale flags the event's plan when an expense mutates after
// generation. The flag is cleared on regeneration.
func (s *ExpenseService) markStale(ctx context.Context, event *models.Event) error {
	if event.PlanVersion == 0 || event.SettlementStale {
		return nil
	}
	switch event.Status {
	case models.EventReview, models.EventPayment:
		event.SettlementStale = true
		return s.store.UpdateEvent(ctx, event)
	}
	return nil
}
