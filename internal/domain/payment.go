package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// PaymentProvider names an external payment provider
type PaymentProvider string

const (
	ProviderStripe PaymentProvider = "stripe"
	ProviderSquare PaymentProvider = "square"
	ProviderMock   PaymentProvider = "mock"
)

// Payment is what a provider reports for one payment id
type Payment struct {
	ID               string            `json:"id"`
	Provider         PaymentProvider   `json:"provider"`
	Status           string            `json:"status"`
	AmountMinorUnits int64             `json:"amountMinorUnits"`
	Currency         string            `json:"currency"`
	BuyerEmail       string            `json:"buyerEmail,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	ReferenceID      string            `json:"referenceId,omitempty"`
	Note             string            `json:"note,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// Amount returns the payment amount as Money
func (p *Payment) Amount() Money {
	return Money(p.AmountMinorUnits)
}

// Succeeded reports whether the provider considers the payment captured
func (p *Payment) Succeeded() bool {
	switch strings.ToLower(p.Status) {
	case "succeeded", "completed", "paid", "approved":
		return true
	}
	return false
}

// RegistrationReference returns the registration id a payment carries in
// its metadata, reference id or note
func (p *Payment) RegistrationReference() string {
	for _, k := range []string{"registrationId", "registration_id", "registrationId (metadata)"} {
		if v := strings.TrimSpace(p.Metadata[k]); v != "" {
			return v
		}
	}
	return strings.TrimSpace(p.ReferenceID)
}

// MatchMethod says how a payment was matched to a registration
type MatchMethod string

const (
	MatchByPaymentID   MatchMethod = "payment_id"
	MatchByMetadata    MatchMethod = "metadata"
	MatchByAmountTime  MatchMethod = "amount_time"
	MatchByEmailAmount MatchMethod = "email_amount"
	MatchNone          MatchMethod = "none"
)

// PaymentMatch is the result of matching one payment
type PaymentMatch struct {
	PaymentID          string      `json:"paymentId"`
	Provider           string      `json:"provider"`
	RegistrationID     string      `json:"registrationId,omitempty"`
	ConfirmationNumber string      `json:"confirmationNumber,omitempty"`
	Method             MatchMethod `json:"method"`
	Confidence         int         `json:"confidence"`
	Issues             []string    `json:"issues,omitempty"`
}

// ParsePaymentRecord reads an imported payment from the payments collection.
// Amounts there are stored in major units.
func ParsePaymentRecord(doc bson.M) (*Payment, bool) {
	id := FirstString(doc, "paymentId", "transactionId", "id")
	if id == "" {
		return nil, false
	}

	p := &Payment{
		ID:         id,
		Provider:   PaymentProvider(strings.ToLower(FirstString(doc, "source", "provider"))),
		Status:     FirstString(doc, "status"),
		Currency:   strings.ToUpper(FirstString(doc, "currency")),
		BuyerEmail: strings.ToLower(FirstString(doc, "customerEmail", "buyerEmail")),
		Metadata:   map[string]string{},
	}
	if amount, ok := ParseMoney(doc["amount"]); ok {
		p.AmountMinorUnits = int64(amount)
	}
	if v, _, ok := FirstValue(doc, "timestamp", "createdAt"); ok {
		p.CreatedAt, _ = TimeValue(v)
	}
	for _, key := range []string{"originalData", "metadata"} {
		if meta, ok := AsDocument(doc[key]); ok {
			for k, v := range meta {
				if s := StringValue(v); s != "" {
					p.Metadata[k] = s
				}
			}
		}
	}
	return p, true
}

// MatchStatistics summarises a payment matching pass
type MatchStatistics struct {
	Total        int            `json:"total"`
	Matched      int            `json:"matched"`
	Unmatched    int            `json:"unmatched"`
	ByConfidence map[string]int `json:"byConfidence"`
	ByMethod     map[string]int `json:"byMethod"`
}

// NewMatchStatistics tallies match results into confidence buckets
func NewMatchStatistics(matches []PaymentMatch) MatchStatistics {
	stats := MatchStatistics{
		Total: len(matches),
		ByConfidence: map[string]int{
			"90-100": 0, "70-89": 0, "50-69": 0, "0-49": 0,
		},
		ByMethod: map[string]int{},
	}
	for _, m := range matches {
		if m.Method == MatchNone {
			stats.Unmatched++
		} else {
			stats.Matched++
		}
		switch {
		case m.Confidence >= 90:
			stats.ByConfidence["90-100"]++
		case m.Confidence >= 70:
			stats.ByConfidence["70-89"]++
		case m.Confidence >= 50:
			stats.ByConfidence["50-69"]++
		default:
			stats.ByConfidence["0-49"]++
		}
		stats.ByMethod[string(m.Method)]++
	}
	return stats
}
