// Package entitlement gates pro-tier capabilities. Callers assert a
// capability before performing the gated action; free-tier users get a
// typed error the API layer maps straight to a 403 upsell response.
package entitlement

import (
	"context"
	"fmt"

	"github.com/vkarkhanis/splitex/internal/models"
)

// Capability names a gated feature.
type Capability string

const (
	// CapMultiCurrencySettlement allows an event's settlement currency
	// to differ from its expense currency.
	CapMultiCurrencySettlement Capability = "multiCurrencySettlement"
)

// features maps capabilities to their wire-level feature identifiers.
var features = map[Capability]string{
	CapMultiCurrencySettlement: "multi_currency_settlement",
}

// planCapabilities lists what each plan tier may do.
var planCapabilities = map[models.Plan]map[Capability]bool{
	models.PlanFree: {},
	models.PlanPro: {
		CapMultiCurrencySettlement: true,
	},
}

// Error is the typed entitlement failure surfaced to clients. It is never
// silently downgraded; the UI uses it to trigger the upsell path.
type Error struct {
	StatusCode int
	ErrorCode  string
	Feature    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: feature %s requires a pro plan", e.ErrorCode, e.Feature)
}

// PlanSource looks up a user's subscription tier.
type PlanSource interface {
	GetUserPlan(ctx context.Context, userID string) (models.Plan, error)
}

// Service checks capabilities against a user's plan.
type Service struct {
	plans PlanSource
}

// NewService creates an entitlement service backed by the given plan
// source.
func NewService(plans PlanSource) *Service {
	return &Service{plans: plans}
}

// AssertCapability returns nil when the user's plan includes the
// capability, and a typed *Error otherwise.
func (s *Service) AssertCapability(ctx context.Context, userID string, cap Capability) error {
	plan, err := s.plans.GetUserPlan(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to look up plan for user %s: %w", userID, err)
	}

	if planCapabilities[plan][cap] {
		return nil
	}

	return &Error{
		StatusCode: 403,
		ErrorCode:  "FEATURE_REQUIRES_PRO",
		Feature:    features[cap],
	}
}
