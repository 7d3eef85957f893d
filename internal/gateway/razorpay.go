package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const razorpayLinkURL = "https://api.razorpay.com/v1/payment_links"

// Razorpay starts payments through Razorpay payment links.
type Razorpay struct {
	keyID     string
	keySecret string
	endpoint  string
	client    *http.Client
}

// NewRazorpay creates a Razorpay provider. Missing credentials make every
// payment start fail with a configuration error.
func NewRazorpay(keyID, keySecret string, timeout time.Duration) *Razorpay {
	return &Razorpay{
		keyID:     keyID,
		keySecret: keySecret,
		endpoint:  razorpayLinkURL,
		client:    &http.Client{Timeout: timeout},
	}
}

type razorpayLink struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
}

// StartPayment creates a payment link for the settlement amount.
func (r *Razorpay) StartPayment(ctx context.Context, req PaymentRequest) (*PaymentIntent, error) {
	if r.keyID == "" || r.keySecret == "" {
		return nil, fmt.Errorf("%w: Razorpay is not configured", ErrNotConfigured)
	}

	payload := map[string]any{
		"amount":          razorpayAmount(req.Amount),
		"currency":        req.Currency,
		"description":     req.Description,
		"reference_id":    req.SettlementID,
		"accept_partial":  false,
		"notify":          map[string]bool{"sms": false, "email": false},
		"reminder_enable": false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode Razorpay request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create Razorpay payment link: %w", err)
	}
	httpReq.SetBasicAuth(r.keyID, r.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to create Razorpay payment link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to create Razorpay payment link: status %d", resp.StatusCode)
	}

	var link razorpayLink
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return nil, fmt.Errorf("failed to decode Razorpay response: %w", err)
	}

	return &PaymentIntent{
		Provider:    ProviderRazorpay,
		PaymentID:   link.ID,
		CheckoutURL: link.ShortURL,
	}, nil
}

// razorpayAmount renders the amount in paise; Razorpay only deals in INR
// minor units.
func razorpayAmount(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
