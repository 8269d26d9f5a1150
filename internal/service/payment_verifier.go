package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/gateway"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
)

// PaymentVerifier compares registrations with what the provider recorded
type PaymentVerifier struct {
	gateways gateway.Gateways
	log      *logger.Logger
}

// NewPaymentVerifier creates a verifier
func NewPaymentVerifier(gateways gateway.Gateways, log *logger.Logger) *PaymentVerifier {
	if log == nil {
		log = logger.Nop()
	}
	return &PaymentVerifier{gateways: gateways, log: log}
}

// PaymentReference returns the provider and payment id of a registration
func PaymentReference(reg *domain.Registration) (domain.PaymentProvider, string, bool) {
	if reg.StripePaymentIntentID != "" {
		return domain.ProviderStripe, reg.StripePaymentIntentID, true
	}
	if reg.SquarePaymentID != "" {
		return domain.ProviderSquare, reg.SquarePaymentID, true
	}
	return "", "", false
}

// Verify checks amount, status and buyer email of one registration's
// payment. Provider failures are returned as ExternalAPIError so the caller
// skips only this lookup.
func (v *PaymentVerifier) Verify(ctx context.Context, reg *domain.Registration) ([]domain.Discrepancy, error) {
	provider, paymentID, ok := PaymentReference(reg)
	if !ok {
		return nil, nil
	}
	gw, err := v.gateways.For(provider)
	if err != nil {
		return nil, &domain.ExternalAPIError{Provider: string(provider), PaymentID: paymentID, Err: err}
	}

	base := domain.Discrepancy{
		Kind:               domain.DiscrepancyPayment,
		RegistrationID:     reg.RegistrationID,
		ConfirmationNumber: reg.ConfirmationNumber,
	}

	p, err := gw.GetPayment(ctx, paymentID)
	if errors.Is(err, domain.ErrPaymentNotFound) {
		d := base
		d.Field = "paymentId"
		d.CurrentValue = paymentID
		d.Reason = fmt.Sprintf("payment not found at %s", provider)
		return []domain.Discrepancy{d}, nil
	}
	if err != nil {
		v.log.Warn("payment lookup skipped",
			zap.String("registration_id", reg.RegistrationID),
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
		var apiErr *domain.ExternalAPIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, &domain.ExternalAPIError{Provider: string(provider), PaymentID: paymentID, Err: err}
	}

	var out []domain.Discrepancy
	if reg.HasTotal && reg.TotalAmountPaid != p.Amount() {
		d := base
		d.Field = "totalAmountPaid"
		d.CurrentValue = reg.TotalAmountPaid.String()
		d.CorrectValue = p.Amount().String()
		d.Reason = fmt.Sprintf("registration total differs from %s payment %s", provider, p.ID)
		out = append(out, d)
	}
	if stored, want := paymentStatusOf(reg.PaymentStatus), p.Succeeded(); stored != statusUnknown && (stored == statusPaid) != want {
		d := base
		d.Field = "paymentStatus"
		d.CurrentValue = reg.PaymentStatus
		d.CorrectValue = p.Status
		d.Reason = fmt.Sprintf("%s reports payment %s as %s", provider, p.ID, p.Status)
		out = append(out, d)
	}
	if email := reg.Email(); email != "" && p.BuyerEmail != "" && !strings.EqualFold(email, p.BuyerEmail) {
		d := base
		d.Field = "customerEmail"
		d.CurrentValue = email
		d.CorrectValue = p.BuyerEmail
		d.Reason = "buyer email differs from booking contact"
		out = append(out, d)
	}
	return out, nil
}

type paymentState int

const (
	statusUnknown paymentState = iota
	statusPaid
	statusUnpaid
)

func paymentStatusOf(s string) paymentState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "paid", "succeeded", "success":
		return statusPaid
	case "pending", "failed", "cancelled", "canceled", "unpaid", "refunded":
		return statusUnpaid
	}
	return statusUnknown
}
