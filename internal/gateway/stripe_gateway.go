package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// StripeGateway implements PaymentGateway using Stripe payment intents
type StripeGateway struct {
	config *StripeGatewayConfig
}

// StripeGatewayConfig holds configuration for Stripe gateway
type StripeGatewayConfig struct {
	SecretKey string
}

// NewStripeGateway creates a new Stripe gateway
func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}

	// Set Stripe API key globally
	stripe.Key = config.SecretKey

	return &StripeGateway{
		config: config,
	}, nil
}

// GetPayment retrieves a payment intent
func (g *StripeGateway) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("payment ID is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := paymentintent.Get(paymentID, params)
	if err != nil {
		return nil, stripeError(paymentID, err)
	}
	return paymentFromIntent(pi), nil
}

// Name returns the gateway name
func (g *StripeGateway) Name() string {
	return string(domain.ProviderStripe)
}

func paymentFromIntent(pi *stripe.PaymentIntent) *domain.Payment {
	p := &domain.Payment{
		ID:               pi.ID,
		Provider:         domain.ProviderStripe,
		Status:           string(pi.Status),
		AmountMinorUnits: pi.Amount,
		Currency:         strings.ToUpper(string(pi.Currency)),
		BuyerEmail:       strings.ToLower(pi.ReceiptEmail),
		CreatedAt:        time.Unix(pi.Created, 0).UTC(),
		Note:             pi.Description,
		Metadata:         pi.Metadata,
	}
	if p.BuyerEmail == "" && pi.Customer != nil {
		p.BuyerEmail = strings.ToLower(pi.Customer.Email)
	}
	if p.Metadata != nil {
		p.ReferenceID = p.Metadata["registrationId"]
	}
	return p
}

// stripeError maps resource_missing and 404 onto ErrPaymentNotFound
func stripeError(paymentID string, err error) error {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.Code == stripe.ErrorCodeResourceMissing || serr.HTTPStatusCode == http.StatusNotFound {
			return fmt.Errorf("stripe payment %s: %w", paymentID, domain.ErrPaymentNotFound)
		}
		return &domain.ExternalAPIError{
			Provider:   string(domain.ProviderStripe),
			PaymentID:  paymentID,
			StatusCode: serr.HTTPStatusCode,
			Err:        err,
		}
	}
	return &domain.ExternalAPIError{Provider: string(domain.ProviderStripe), PaymentID: paymentID, Err: err}
}
