// Package gateway abstracts the payment providers a settlement can be
// executed through. The engine only needs amount, currency, and a
// success/failure outcome; provider wire protocols stay behind this
// boundary.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Provider identifies a payment backend.
type Provider string

const (
	ProviderMock     Provider = "mock"
	ProviderStripe   Provider = "stripe"
	ProviderRazorpay Provider = "razorpay"
)

// Mode is the gateway selection policy.
type Mode string

const (
	// ModeAuto defers to the environment: real providers in production,
	// mock elsewhere.
	ModeAuto Mode = "auto"

	// ModeMock always uses the mock provider.
	ModeMock Mode = "mock"

	// ModeLive always uses the real provider.
	ModeLive Mode = "live"
)

// ErrNotConfigured is wrapped by provider errors when credentials are
// missing.
var ErrNotConfigured = errors.New("payment provider not configured")

// PaymentRequest carries everything a provider needs to start a payment.
type PaymentRequest struct {
	SettlementID string
	Amount       decimal.Decimal
	Currency     string
	Description  string
}

// PaymentIntent is the provider's handle for a started payment.
type PaymentIntent struct {
	Provider    Provider
	PaymentID   string
	CheckoutURL string
}

// Gateway starts payments against one provider.
type Gateway interface {
	StartPayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error)
}

// Selector routes payment starts to mock or live providers according to
// the configured mode and environment. Constructed once per process and
// injected; there is no package-level client state.
type Selector struct {
	mode        Mode
	environment string
	allowReal   bool

	mock      Gateway
	providers map[Provider]Gateway
}

// NewSelector builds the routing policy. environment is the deployment
// name ("production", "staging", ...); allowReal is the explicit opt-in
// that lets non-production environments reach real providers.
func NewSelector(mode Mode, environment string, allowReal bool, mock Gateway, providers map[Provider]Gateway) *Selector {
	if mode == "" {
		mode = ModeAuto
	}
	return &Selector{
		mode:        mode,
		environment: environment,
		allowReal:   allowReal,
		mock:        mock,
		providers:   providers,
	}
}

// StartPayment starts a payment on the provider chosen by policy.
// useReal is the caller's request to hit the live provider; it is honored
// only where policy allows.
func (s *Selector) StartPayment(ctx context.Context, provider Provider, req PaymentRequest, useReal bool) (*PaymentIntent, error) {
	gw, err := s.resolve(provider, useReal)
	if err != nil {
		return nil, err
	}
	return gw.StartPayment(ctx, req)
}

func (s *Selector) resolve(provider Provider, useReal bool) (Gateway, error) {
	wantReal := false
	switch s.mode {
	case ModeMock:
		wantReal = false
	case ModeLive:
		wantReal = true
	case ModeAuto:
		wantReal = useReal
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", s.mode)
	}

	// Non-production environments are forced to mock unless explicitly
	// opted in, so a staging deploy can never charge a real card by
	// accident.
	if wantReal && s.environment != "production" && !s.allowReal {
		wantReal = false
	}

	if !wantReal || provider == ProviderMock {
		return s.mock, nil
	}

	gw, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q", provider)
	}
	return gw, nil
}
