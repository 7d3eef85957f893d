package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vkarkhanis/splitex/internal/models"
)

const stripeCheckoutURL = "https://api.stripe.com/v1/checkout/sessions"

// Stripe starts payments through Stripe checkout sessions.
type Stripe struct {
	secretKey string
	endpoint  string
	client    *http.Client
}

// NewStripe creates a Stripe provider. secretKey may be empty, in which
// case every payment start fails with a configuration error.
func NewStripe(secretKey string, timeout time.Duration) *Stripe {
	return &Stripe{
		secretKey: secretKey,
		endpoint:  stripeCheckoutURL,
		client:    &http.Client{Timeout: timeout},
	}
}

type stripeSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// StartPayment creates a checkout session for the settlement amount.
func (s *Stripe) StartPayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error) {
	if s.secretKey == "" {
		return nil, fmt.Errorf("%w: Stripe is not configured", ErrNotConfigured)
	}

	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.SettlementID)
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][unit_amount]", minorUnitAmount(req.Amount, req.Currency))
	form.Set("line_items[0][price_data][product_data][name]", req.Description)
	form.Set("line_items[0][quantity]", "1")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("Failed to create Stripe checkout session: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Failed to create Stripe checkout session: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Failed to create Stripe checkout session: status %d", resp.StatusCode)
	}

	var session stripeSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("Failed to create Stripe checkout session: %v", err)
	}

	return &PaymentIntent{
		Provider:    ProviderStripe,
		PaymentID:   session.ID,
		CheckoutURL: session.URL,
	}, nil
}

// minorUnitAmount renders an amount in the currency's smallest unit, the
// integer form provider APIs expect.
func minorUnitAmount(amount decimal.Decimal, currency string) string {
	shift := models.MinorUnits(currency)
	return amount.Shift(shift).Round(0).String()
}
