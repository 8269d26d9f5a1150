package gateway

import (
	"context"
	"fmt"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// PaymentGateway looks up payments at a provider. Unknown ids fail with
// domain.ErrPaymentNotFound.
type PaymentGateway interface {
	// GetPayment retrieves one payment
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)

	// Name returns the gateway name
	Name() string
}

// Gateways routes lookups to the provider a registration was paid through
type Gateways map[domain.PaymentProvider]PaymentGateway

// For returns the gateway for a provider
func (g Gateways) For(provider domain.PaymentProvider) (PaymentGateway, error) {
	gw, ok := g[provider]
	if !ok || gw == nil {
		return nil, fmt.Errorf("no gateway configured for %s", provider)
	}
	return gw, nil
}
