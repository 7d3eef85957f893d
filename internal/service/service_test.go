package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vkarkhanis/splitex/internal/entitlement"
	"github.com/vkarkhanis/splitex/internal/fx"
	"github.com/vkarkhanis/splitex/internal/gateway"
	"github.com/vkarkhanis/splitex/internal/lifecycle"
	"github.com/vkarkhanis/splitex/internal/metrics"
	"github.com/vkarkhanis/splitex/internal/models"
	"github.com/vkarkhanis/splitex/internal/realtime"
	"github.com/vkarkhanis/splitex/internal/storage"
	"github.com/vkarkhanis/splitex/internal/storage/sqlite"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	store       storage.Store
	events      *EventService
	expenses    *ExpenseService
	settlements *SettlementService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ent := entitlement.NewService(store)
	emitter := realtime.Nop{}
	m := metrics.New(prometheus.NewRegistry())
	resolver := fx.NewResolver(nil)
	sel := gateway.NewSelector(gateway.ModeMock, "test", false, gateway.NewMock(), nil)
	lm := lifecycle.NewManager(store, sel, emitter, m, time.Second)

	events := NewEventService(store, ent, emitter)
	expenses := NewExpenseService(store, events, emitter)
	settlements := NewSettlementService(store, events, ent, resolver, lm, emitter, m)

	return &testEnv{
		store:       store,
		events:      events,
		expenses:    expenses,
		settlements: settlements,
	}
}

// seedUser creates a user with the given plan and returns its ID.
func (e *testEnv) seedUser(t *testing.T, name string, plan models.Plan) string {
	t.Helper()
	user := models.NewUser(name+"@example.com", name, "hash")
	user.Plan = plan
	require.NoError(t, e.store.CreateUser(context.Background(), user))
	return user.ID
}

// seedEvent creates a single-currency event owned by creatorID and adds
// the other users as participants.
func (e *testEnv) seedEvent(t *testing.T, creatorID string, others ...string) *models.Event {
	t.Helper()
	ctx := context.Background()
	event, err := e.events.CreateEvent(ctx, creatorID, CreateEventInput{
		Name:     "Goa Trip",
		Currency: "INR",
	})
	require.NoError(t, err)
	for _, userID := range others {
		require.NoError(t, e.events.AddParticipant(ctx, creatorID, event.ID, userID))
	}
	return event
}

func equalSplitInputs(userIDs ...string) []SplitInput {
	out := make([]SplitInput, len(userIDs))
	for i, id := range userIDs {
		out[i] = SplitInput{Entity: models.UserEntity(id)}
	}
	return out
}
