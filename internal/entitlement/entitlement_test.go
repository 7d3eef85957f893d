package entitlement

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkarkhanis/splitex/internal/models"
)

type fakePlans map[string]models.Plan

func (f fakePlans) GetUserPlan(_ context.Context, userID string) (models.Plan, error) {
	plan, ok := f[userID]
	if !ok {
		return "", errors.New("no such user")
	}
	return plan, nil
}

func TestAssertCapabilityProAllowed(t *testing.T) {
	svc := NewService(fakePlans{"u1": models.PlanPro})
	assert.NoError(t, svc.AssertCapability(context.Background(), "u1", CapMultiCurrencySettlement))
}

func TestAssertCapabilityFreeRejected(t *testing.T) {
	svc := NewService(fakePlans{"u1": models.PlanFree})

	err := svc.AssertCapability(context.Background(), "u1", CapMultiCurrencySettlement)
	require.Error(t, err)

	var entErr *Error
	require.ErrorAs(t, err, &entErr)
	assert.Equal(t, 403, entErr.StatusCode)
	assert.Equal(t, "FEATURE_REQUIRES_PRO", entErr.ErrorCode)
	assert.Equal(t, "multi_currency_settlement", entErr.Feature)
}

func TestAssertCapabilityLookupFailure(t *testing.T) {
	svc := NewService(fakePlans{})

	err := svc.AssertCapability(context.Background(), "ghost", CapMultiCurrencySettlement)
	require.Error(t, err)

	var entErr *Error
	assert.False(t, errors.As(err, &entErr), "lookup failures are not entitlement denials")
}
