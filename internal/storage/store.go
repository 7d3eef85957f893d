// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/vkarkhanis/splitex/internal/models"
)

// Sentinel errors surfaced by store implementations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic version check fails,
	// e.g. two concurrent plan generations for the same event.
	ErrConflict = errors.New("version conflict")
)

// Store defines the persistence collaborator for the settlement engine.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL,
// etc.) without changing the engine or service layers.
type Store interface {
	// CreateUser persists a new user, populating the ID field.
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	// GetUserPlan looks up only the subscription tier.
	GetUserPlan(ctx context.Context, userID string) (models.Plan, error)

	// CreateEvent persists a new event, populating the ID field.
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	// UpdateEvent rewrites the event's mutable fields.
	UpdateEvent(ctx context.Context, event *models.Event) error
	// DeleteEvent removes the event and its expenses, participants, and
	// groups, and marks every open settlement terminated, atomically.
	DeleteEvent(ctx context.Context, id string) error

	AddParticipant(ctx context.Context, p *models.Participant) error
	ListParticipants(ctx context.Context, eventID string) ([]models.Participant, error)
	// CreateGroup persists a new group, populating the ID field.
	CreateGroup(ctx context.Context, group *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	ListGroups(ctx context.Context, eventID string) ([]models.Group, error)

	// CreateExpense persists a new expense with its splits, populating
	// the ID field.
	CreateExpense(ctx context.Context, expense *models.Expense) error
	GetExpense(ctx context.Context, id string) (*models.Expense, error)
	UpdateExpense(ctx context.Context, expense *models.Expense) error
	DeleteExpense(ctx context.Context, id string) error
	ListExpenses(ctx context.Context, eventID string) ([]models.Expense, error)

	// SaveSettlementPlan atomically supersedes the event's open pending
	// settlements, inserts the new batch, and writes the event's status,
	// stale flag, approvals, and plan version. The write only commits if
	// the stored plan version still matches event.PlanVersion-1;
	// otherwise ErrConflict.
	SaveSettlementPlan(ctx context.Context, event *models.Event, settlements []*models.Settlement) error
	GetSettlement(ctx context.Context, id string) (*models.Settlement, error)
	// UpdateSettlement rewrites the settlement's lifecycle fields.
	UpdateSettlement(ctx context.Context, settlement *models.Settlement) error
	ListSettlementsByEvent(ctx context.Context, eventID string) ([]*models.Settlement, error)

	// ApplySettlementCallback records an external gateway callback ID
	// and writes the settlement's lifecycle fields atomically, so a
	// callback ID is only consumed once its outcome is durable. It
	// returns false without writing when the ID was already recorded,
	// which is how duplicate webhook deliveries become no-ops.
	ApplySettlementCallback(ctx context.Context, callbackID string, settlement *models.Settlement) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
