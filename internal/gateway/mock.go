package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Mock is the in-process provider used everywhere outside production. It
// always succeeds and hands back a synthetic payment ID.
type Mock struct{}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{}
}

// StartPayment issues a synthetic payment intent.
func (m *Mock) StartPayment(_ context.Context, req PaymentRequest) (*PaymentIntent, error) {
	id := fmt.Sprintf("mock_%s", uuid.New().String())
	return &PaymentIntent{
		Provider:    ProviderMock,
		PaymentID:   id,
		CheckoutURL: fmt.Sprintf("https://payments.splitex.local/checkout/%s", id),
	}, nil
}
