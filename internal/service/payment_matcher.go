package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// Payment id fields a registration may carry, per provider
var (
	squarePaymentFields = []string{"square_payment_id", "squarePaymentId", "registrationData.square_payment_id"}
	stripePaymentFields = []string{"stripe_payment_intent_id", "stripePaymentIntentId", "registrationData.stripe_payment_intent_id"}
)

// RegistrationFinder is the read side the matcher needs
type RegistrationFinder interface {
	FindOne(ctx context.Context, filter bson.M) (bson.M, bool, error)
}

// PaymentMatcherConfig holds the matching tolerances
type PaymentMatcherConfig struct {
	// AmountTolerance is how far amounts may differ and still match
	AmountTolerance domain.Money
	// TimeTolerance is how far apart payment and registration may be
	TimeTolerance time.Duration
	// SearchWindow bounds the amount-and-time search
	SearchWindow time.Duration
}

// DefaultPaymentMatcherConfig returns 10 cents, 10 minutes and 5 minutes
func DefaultPaymentMatcherConfig() *PaymentMatcherConfig {
	return &PaymentMatcherConfig{
		AmountTolerance: 10,
		TimeTolerance:   10 * time.Minute,
		SearchWindow:    5 * time.Minute,
	}
}

// PaymentMatcher finds the registration an imported payment belongs to
type PaymentMatcher struct {
	registrations RegistrationFinder
	config        *PaymentMatcherConfig
}

// NewPaymentMatcher creates a matcher
func NewPaymentMatcher(registrations RegistrationFinder, config *PaymentMatcherConfig) *PaymentMatcher {
	if config == nil {
		config = DefaultPaymentMatcherConfig()
	}
	return &PaymentMatcher{registrations: registrations, config: config}
}

// Match tries payment id, metadata registration id, amount and time, then
// email and amount, in that order
func (m *PaymentMatcher) Match(ctx context.Context, p *domain.Payment) (domain.PaymentMatch, error) {
	match := domain.PaymentMatch{PaymentID: p.ID, Provider: string(p.Provider), Method: domain.MatchNone}

	doc, found, err := m.registrations.FindOne(ctx, paymentIDFilter(p))
	if err != nil {
		return match, err
	}
	if found {
		amountOK, timeOK := m.compare(p, doc, &match)
		match.Method = domain.MatchByPaymentID
		match.Confidence = 80
		if amountOK && timeOK {
			match.Confidence = 100
		}
		return m.found(match, doc), nil
	}

	if ref := p.RegistrationReference(); ref != "" {
		alternatives := bson.A{bson.M{"registrationId": ref}}
		if oid, err := primitive.ObjectIDFromHex(ref); err == nil {
			alternatives = append(alternatives, bson.M{"_id": oid})
		}
		doc, found, err = m.registrations.FindOne(ctx, bson.M{"$or": alternatives})
		if err != nil {
			return match, err
		}
		if found {
			amountOK, _ := m.compare(p, doc, &match)
			match.Method = domain.MatchByMetadata
			match.Confidence = 70
			if amountOK {
				match.Confidence = 90
			}
			return m.found(match, doc), nil
		}
	}

	amount := amountFilter(p.Amount())
	if !p.CreatedAt.IsZero() {
		doc, found, err = m.registrations.FindOne(ctx, bson.M{"$and": bson.A{
			amount,
			bson.M{"createdAt": bson.M{
				"$gte": p.CreatedAt.Add(-m.config.SearchWindow),
				"$lte": p.CreatedAt.Add(m.config.SearchWindow),
			}},
		}})
		if err != nil {
			return match, err
		}
		if found {
			match.Method = domain.MatchByAmountTime
			match.Confidence = 60
			match.Issues = append(match.Issues, "Matched by amount and time only - no payment ID match")
			return m.found(match, doc), nil
		}
	}

	if p.BuyerEmail != "" {
		doc, found, err = m.registrations.FindOne(ctx, bson.M{"$and": bson.A{
			amount,
			bson.M{"$or": bson.A{
				bson.M{"customerEmail": p.BuyerEmail},
				bson.M{"registrationData.bookingContact.email": p.BuyerEmail},
				bson.M{"registrationData.bookingContact.emailAddress": p.BuyerEmail},
			}},
		}})
		if err != nil {
			return match, err
		}
		if found {
			match.Method = domain.MatchByEmailAmount
			match.Confidence = 50
			match.Issues = append(match.Issues, "Matched by email and amount only - verify manually")
			return m.found(match, doc), nil
		}
	}

	match.Issues = append(match.Issues, "No matching registration found")
	return match, nil
}

// compare checks amount and time of a matched registration, appending issues
func (m *PaymentMatcher) compare(p *domain.Payment, doc bson.M, match *domain.PaymentMatch) (amountOK, timeOK bool) {
	amountOK, timeOK = true, true

	if regAmount, ok := registrationAmount(doc); ok {
		diff := int64(p.Amount() - regAmount)
		if diff < 0 {
			diff = -diff
		}
		if diff > int64(m.config.AmountTolerance) {
			amountOK = false
			match.Issues = append(match.Issues, fmt.Sprintf("Amount mismatch: Payment %s vs Registration %s", p.Amount(), regAmount))
		}
	}

	if v, _, ok := domain.FirstValue(doc, "createdAt", "created_at"); ok && !p.CreatedAt.IsZero() {
		if created, ok := domain.TimeValue(v); ok {
			gap := p.CreatedAt.Sub(created)
			if math.Abs(float64(gap)) > float64(m.config.TimeTolerance) {
				timeOK = false
				match.Issues = append(match.Issues, fmt.Sprintf("Time mismatch: %.0f minutes apart", math.Abs(gap.Minutes())))
			}
		}
	}
	return amountOK, timeOK
}

func (m *PaymentMatcher) found(match domain.PaymentMatch, doc bson.M) domain.PaymentMatch {
	match.RegistrationID = domain.FirstString(doc, "registrationId", "registration_id", "_id")
	match.ConfirmationNumber = domain.FirstString(doc, "confirmationNumber", "confirmation_number")
	return match
}

func registrationAmount(doc bson.M) (domain.Money, bool) {
	for _, f := range []string{"totalAmount", "totalAmountPaid", "total_amount_paid"} {
		if v, ok := doc[f]; ok {
			if m, ok := domain.ParseMoney(v); ok {
				return m, true
			}
		}
	}
	return 0, false
}

func paymentIDFilter(p *domain.Payment) bson.M {
	var fields []string
	switch p.Provider {
	case domain.ProviderSquare:
		fields = squarePaymentFields
	case domain.ProviderStripe:
		fields = stripePaymentFields
	default:
		fields = append(append(fields, squarePaymentFields...), stripePaymentFields...)
	}
	or := make(bson.A, 0, len(fields))
	for _, f := range fields {
		or = append(or, bson.M{f: p.ID})
	}
	return bson.M{"$or": or}
}

// amountFilter matches totalAmount or totalAmountPaid stored as dollars
func amountFilter(amount domain.Money) bson.M {
	lo, hi := amount.Major()-0.005, amount.Major()+0.005
	rng := bson.M{"$gte": lo, "$lte": hi}
	return bson.M{"$or": bson.A{
		bson.M{"totalAmount": rng},
		bson.M{"totalAmountPaid": rng},
	}}
}

// PaymentSource streams payments awaiting a match
type PaymentSource interface {
	StreamUnmatched(ctx context.Context, fn func(p *domain.Payment) error) (int, error)
}

// MatchReport is the outcome of a matching pass
type MatchReport struct {
	Matches    []domain.PaymentMatch  `json:"matches"`
	Statistics domain.MatchStatistics `json:"statistics"`
	Skipped    int                    `json:"skipped"`
}

// MatchUnmatched matches every payment without an invoice, oldest first
func (m *PaymentMatcher) MatchUnmatched(ctx context.Context, source PaymentSource) (*MatchReport, error) {
	report := &MatchReport{Matches: []domain.PaymentMatch{}}
	skipped, err := source.StreamUnmatched(ctx, func(p *domain.Payment) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		match, err := m.Match(ctx, p)
		if err != nil {
			return fmt.Errorf("failed to match payment %s: %w", p.ID, err)
		}
		report.Matches = append(report.Matches, match)
		return nil
	})
	report.Skipped = skipped
	report.Statistics = domain.NewMatchStatistics(report.Matches)
	return report, err
}
