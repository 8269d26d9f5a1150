package domain

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Data keys a registration payload has been stored under
const (
	DataKeyCanonical = "registrationData"
	DataKeyLegacy    = "registration_data"
)

// TicketShape tells which ticket arrays a raw registration carries
type TicketShape int

const (
	TicketShapeNone TicketShape = iota
	TicketShapeCanonical
	TicketShapeLegacy
	TicketShapeBoth
)

func (s TicketShape) String() string {
	switch s {
	case TicketShapeCanonical:
		return "tickets"
	case TicketShapeLegacy:
		return "selectedTickets"
	case TicketShapeBoth:
		return "tickets+selectedTickets"
	}
	return "none"
}

// ContactShape tells which booking contact objects a raw registration carries
type ContactShape int

const (
	ContactShapeNone ContactShape = iota
	ContactShapeCanonical
	ContactShapeBilling
	ContactShapeBoth
)

// RootFieldRenames maps snake_case root fields onto their canonical names.
// Timestamps are renamed only when the camelCase field is absent.
var RootFieldRenames = map[string]string{
	"created_at":                "createdAt",
	"updated_at":                "updatedAt",
	"registration_id":           "registrationId",
	"customer_id":               "customerId",
	"registration_date":         "registrationDate",
	"total_amount_paid":         "totalAmountPaid",
	"total_price_paid":          "totalPricePaid",
	"payment_status":            "paymentStatus",
	"agree_to_terms":            "agreeToTerms",
	"stripe_payment_intent_id":  "stripePaymentIntentId",
	"primary_attendee_id":       "primaryAttendeeId",
	"registration_type":         "registrationType",
	"confirmation_number":       "confirmationNumber",
	"organisation_id":           "organisationId",
	"connected_account_id":      "connectedAccountId",
	"platform_fee_amount":       "platformFeeAmount",
	"platform_fee_id":           "platformFeeId",
	"confirmation_pdf_url":      "confirmationPdfUrl",
	"stripe_fee":                "stripeFee",
	"includes_processing_fee":   "includesProcessingFee",
	"function_id":               "functionId",
	"auth_user_id":              "authUserId",
	"organisation_name":         "organisationName",
	"organisation_number":       "organisationNumber",
	"primary_attendee":          "primaryAttendee",
	"attendee_count":            "attendeeCount",
	"confirmation_generated_at": "confirmationGeneratedAt",
	"event_id":                  "eventId",
	"booking_contact_id":        "bookingContactId",
	"square_payment_id":         "squarePaymentId",
	"square_fee":                "squareFee",
}

// RawRegistration is a stored registration classified by the legacy shapes
// it uses. Every accessor on the normalizer side switches on these tags
// instead of probing optional fields.
type RawRegistration struct {
	Doc bson.M

	// DataKey is the key Data was read from; empty when there is no payload
	DataKey          string
	HasLegacyData    bool
	HasCanonicalData bool
	Data             bson.M

	TicketShape      TicketShape
	Tickets          []bson.M
	LegacyTickets    []bson.M
	MalformedTickets int

	ContactShape ContactShape
	Contact      bson.M
	Billing      bson.M

	Attendees []bson.M
}

// ParseRawRegistration classifies a stored document
func ParseRawRegistration(doc bson.M) (*RawRegistration, error) {
	if len(doc) == 0 {
		return nil, ErrEmptyDocument
	}

	raw := &RawRegistration{Doc: doc}

	canonical, hasCanonical := AsDocument(doc[DataKeyCanonical])
	legacy, hasLegacy := AsDocument(doc[DataKeyLegacy])
	raw.HasCanonicalData = hasCanonical
	raw.HasLegacyData = hasLegacy
	switch {
	case hasCanonical:
		raw.DataKey, raw.Data = DataKeyCanonical, canonical
	case hasLegacy:
		raw.DataKey, raw.Data = DataKeyLegacy, legacy
	default:
		raw.Data = bson.M{}
	}

	tickets, badTickets := documents(raw.Data["tickets"])
	selected, badSelected := documents(raw.Data["selectedTickets"])
	switch {
	case len(tickets) > 0 && len(selected) > 0:
		raw.TicketShape = TicketShapeBoth
	case len(tickets) > 0:
		raw.TicketShape = TicketShapeCanonical
	case len(selected) > 0:
		raw.TicketShape = TicketShapeLegacy
	}
	raw.Tickets, raw.LegacyTickets = tickets, selected
	raw.MalformedTickets = badTickets + badSelected

	contact, hasContact := AsDocument(raw.Data["bookingContact"])
	billing, hasBilling := AsDocument(raw.Data["billingDetails"])
	switch {
	case hasContact && hasBilling:
		raw.ContactShape = ContactShapeBoth
	case hasContact:
		raw.ContactShape = ContactShapeCanonical
	case hasBilling:
		raw.ContactShape = ContactShapeBilling
	}
	raw.Contact, raw.Billing = contact, billing

	raw.Attendees, _ = documents(raw.Data["attendees"])

	return raw, nil
}

// RootString reads a root field by canonical name, falling back to its
// snake_case variant
func (r *RawRegistration) RootString(camel string) string {
	if s := FirstString(r.Doc, camel); s != "" {
		return s
	}
	for snake, c := range RootFieldRenames {
		if c == camel {
			return FirstString(r.Doc, snake)
		}
	}
	return ""
}

// RootValue is RootString for non-string values
func (r *RawRegistration) RootValue(camel string) (interface{}, bool) {
	if v, ok := r.Doc[camel]; ok && v != nil {
		return v, true
	}
	for snake, c := range RootFieldRenames {
		if c == camel {
			if v, ok := r.Doc[snake]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

// DataString reads from the payload first, then the root
func (r *RawRegistration) DataString(paths ...string) string {
	if s := FirstString(r.Data, paths...); s != "" {
		return s
	}
	return FirstString(r.Doc, paths...)
}

func documents(v interface{}) ([]bson.M, int) {
	arr, ok := AsArray(v)
	if !ok {
		return nil, 0
	}
	out := make([]bson.M, 0, len(arr))
	bad := 0
	for _, item := range arr {
		if m, ok := AsDocument(item); ok {
			out = append(out, m)
		} else {
			bad++
		}
	}
	return out, bad
}
