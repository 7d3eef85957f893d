// Package service orchestrates the settlement engine: it validates input,
// gates entitlements, and coordinates the ledger, planner, lifecycle
// manager, and persistence. HTTP handlers only serialize what these
// services return.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/entitlement"
	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/realtime"
	"github.com/vkarkhanis/splitex/internal/storage"
)

// EventService owns event lifecycle and membership.
type EventService struct {
	store        storage.Store
	entitlements *entitlement.Service
	emitter      realtime.Emitter
}

// NewEventService creates an EventService.
func NewEventService(store storage.Store, ent *entitlement.Service, emitter realtime.Emitter) *EventService {
	return &EventService{store: store, entitlements: ent, emitter: emitter}
}

// CreateEventInput is the caller-supplied event definition.
type CreateEventInput struct {
	Name               string
	Currency           string
	SettlementCurrency string
	FxRateMode         models.FxRateMode
	PredefinedFxRates  map[string]decimal.Decimal
	RequireApproval    bool
}

// CreateEvent validates and persists a new event with the creator as its
// first participant. Multi-currency settlement is pro-gated: the
// entitlement check runs before anything is persisted.
func (s *EventService) CreateEvent(ctx context.Context, actorID string, in CreateEventInput) (*models.Event, error) {
	if in.Name == "" {
		return nil, &models.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if in.Currency == "" {
		return nil, &models.ValidationError{Field: "currency", Message: "must not be empty"}
	}
	if in.FxRateMode == "" {
		in.FxRateMode = models.FxPredefined
	}
	if in.FxRateMode != models.FxPredefined && in.FxRateMode != models.FxEndOfDay {
		return nil, &models.ValidationError{Field: "fx_rate_mode", Message: fmt.Sprintf("unknown mode %q", in.FxRateMode)}
	}

	if in.SettlementCurrency != "" && in.SettlementCurrency != in.Currency {
		if err := s.entitlements.AssertCapability(ctx, actorID, entitlement.CapMultiCurrencySettlement); err != nil {
			return nil, err
		}
	}

	event := &models.Event{
		Name:               in.Name,
		Currency:           in.Currency,
		SettlementCurrency: in.SettlementCurrency,
		FxRateMode:         in.FxRateMode,
		PredefinedFxRates:  in.PredefinedFxRates,
		Status:             models.EventActive,
		RequireApproval:    in.RequireApproval,
		CreatedBy:          actorID,
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, err
	}
	if err := s.store.AddParticipant(ctx, &models.Participant{EventID: event.ID, UserID: actorID}); err != nil {
		return nil, err
	}

	slog.Info("event created", "event_id", event.ID, "currency", event.Currency,
		"settlement_currency", event.SettlementCurrency)
	return event, nil
}

// GetEvent retrieves an event the actor participates in.
func (s *EventService) GetEvent(ctx context.Context, actorID, eventID string) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, eventID, actorID); err != nil {
		return nil, err
	}
	return event, nil
}

// UpdateEventInput carries the mutable event fields. Nil pointers leave
// the stored value untouched. Currencies are fixed at creation.
type UpdateEventInput struct {
	Name              *string
	RequireApproval   *bool
	PredefinedFxRates map[string]decimal.Decimal
}

// UpdateEvent applies an admin edit. Rate-table edits mark any current
// plan stale so it gets regenerated with the new rates.
func (s *EventService) UpdateEvent(ctx context.Context, actorID, eventID string, in UpdateEventInput) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy != actorID {
		return nil, fmt.Errorf("user %s is not the event admin: %w", actorID, models.ErrForbidden)
	}
	if event.Status == models.EventClosed {
		return nil, &models.ValidationError{Field: "status", Message: "cannot update a closed event"}
	}

	if in.Name != nil {
		if *in.Name == "" {
			return nil, &models.ValidationError{Field: "name", Message: "must not be empty"}
		}
		event.Name = *in.Name
	}
	if in.RequireApproval != nil {
		event.RequireApproval = *in.RequireApproval
	}
	if in.PredefinedFxRates != nil {
		event.PredefinedFxRates = in.PredefinedFxRates
		if event.PlanVersion > 0 && event.Status != models.EventSettled {
			event.SettlementStale = true
		}
	}

	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	s.emitter.EmitToEvent(eventID, "event:updated", event)
	slog.Info("event updated", "event_id", eventID)
	return event, nil
}

// DeleteEvent removes an event. Only the creator may delete; every open
// settlement is terminated in the same write.
func (s *EventService) DeleteEvent(ctx context.Context, actorID, eventID string) error {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.CreatedBy != actorID {
		return fmt.Errorf("user %s is not the event admin: %w", actorID, models.ErrForbidden)
	}

	if err := s.store.DeleteEvent(ctx, eventID); err != nil {
		return err
	}
	s.emitter.EmitToEvent(eventID, "event:deleted", map[string]string{"event_id": eventID})
	slog.Info("event deleted", "event_id", eventID)
	return nil
}

// CloseEvent marks a settled event closed. Admin action only.
func (s *EventService) CloseEvent(ctx context.Context, actorID, eventID string) (*models.Event, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.CreatedBy != actorID {
		return nil, fmt.Errorf("user %s is not the event admin: %w", actorID, models.ErrForbidden)
	}
	if event.Status != models.EventSettled {
		return nil, &models.ValidationError{Field: "status", Message: fmt.Sprintf("cannot close event in status %q", event.Status)}
	}

	event.Status = models.EventClosed
	if err := s.store.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	s.emitter.EmitToEvent(eventID, "event:updated", event)
	return event, nil
}

// AddParticipant registers a user in the event.
func (s *EventService) AddParticipant(ctx context.Context, actorID, eventID, userID string) error {
	if err := s.requireParticipant(ctx, eventID, actorID); err != nil {
		return err
	}
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		return err
	}
	return s.store.AddParticipant(ctx, &models.Participant{EventID: eventID, UserID: userID})
}

// CreateGroupInput defines a new group inside an event.
type CreateGroupInput struct {
	Name        string
	Members     []string
	PayerUserID string
}

// CreateGroup collapses members onto one ledger entity. The designated
// payer must be a member; members must be event participants.
func (s *EventService) CreateGroup(ctx context.Context, actorID, eventID string, in CreateGroupInput) (*models.Group, error) {
	if err := s.requireParticipant(ctx, eventID, actorID); err != nil {
		return nil, err
	}
	if len(in.Members) == 0 {
		return nil, &models.ValidationError{Field: "members", Message: "must not be empty"}
	}

	group := &models.Group{
		EventID:     eventID,
		Name:        in.Name,
		Members:     in.Members,
		PayerUserID: in.PayerUserID,
	}
	if !group.HasMember(in.PayerUserID) {
		return nil, &models.ValidationError{Field: "payer_user_id", Message: "designated payer must be a group member"}
	}

	participants, err := s.store.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(participants))
	for _, p := range participants {
		present[p.UserID] = true
	}
	for _, member := range in.Members {
		if !present[member] {
			return nil, &models.ValidationError{Field: "members", Message: fmt.Sprintf("user %s is not an event participant", member)}
		}
	}

	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *EventService) requireParticipant(ctx context.Context, eventID, userID string) error {
	participants, err := s.store.ListParticipants(ctx, eventID)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if p.UserID == userID {
			return nil
		}
	}
	return fmt.Errorf("user %s is not a participant of event %s: %w", userID, eventID, models.ErrForbidden)
}
