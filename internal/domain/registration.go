package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// RegistrationType represents the kind of registration
type RegistrationType string

const (
	RegistrationTypeIndividual   RegistrationType = "individual"
	RegistrationTypeLodge        RegistrationType = "lodge"
	RegistrationTypeGrandLodge   RegistrationType = "grandLodge"
	RegistrationTypeMasonicOrder RegistrationType = "masonicOrder"
)

// ParseRegistrationType maps plural and snake_case variants
func ParseRegistrationType(s string) (RegistrationType, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "-", "", " ", "").Replace(key)
	switch key {
	case "individual", "individuals":
		return RegistrationTypeIndividual, true
	case "lodge", "lodges":
		return RegistrationTypeLodge, true
	case "grandlodge", "grandlodges":
		return RegistrationTypeGrandLodge, true
	case "masonicorder", "masonicorders":
		return RegistrationTypeMasonicOrder, true
	}
	return RegistrationType(s), false
}

// Registration is one purchase in canonical shape
type Registration struct {
	ID                 interface{}      `json:"-"`
	RegistrationID     string           `json:"registrationId"`
	ConfirmationNumber string           `json:"confirmationNumber,omitempty"`
	Type               RegistrationType `json:"registrationType"`
	PaymentStatus      string           `json:"paymentStatus,omitempty"`
	TotalAmountPaid    Money            `json:"totalAmountPaid"`
	HasTotal           bool             `json:"-"`
	CreatedAt          time.Time        `json:"createdAt"`
	CustomerEmail      string           `json:"customerEmail,omitempty"`
	LodgeID            string           `json:"lodgeId,omitempty"`
	PrimaryAttendeeID  string           `json:"primaryAttendeeId,omitempty"`

	StripePaymentIntentID string `json:"stripePaymentIntentId,omitempty"`
	SquarePaymentID       string `json:"squarePaymentId,omitempty"`

	Tickets         []Ticket        `json:"tickets"`
	Attendees       []Attendee      `json:"attendees,omitempty"`
	BookingContact  *BookingContact `json:"bookingContact,omitempty"`
	PackageExpanded bool            `json:"packageExpanded,omitempty"`

	// Fields the normalizer owns at the document root (camelCase name ->
	// value), filled from snake_case variants when the camelCase key is missing
	RootFields bson.M `json:"-"`
	// Errors holds per-ticket data-quality problems found while normalizing
	Errors []error `json:"-"`
	// Conflicts holds the legacy shapes dropped in favour of canonical ones
	Conflicts []*DuplicateWriteConflict `json:"-"`
}

// Email returns the lowercased booking email used for duplicate signatures
func (r *Registration) Email() string {
	email := r.CustomerEmail
	if r.BookingContact != nil && r.BookingContact.Email != "" {
		email = r.BookingContact.Email
	}
	return strings.ToLower(strings.TrimSpace(email))
}

// Attendee is a person attached to a registration
type Attendee struct {
	AttendeeID        string `json:"attendeeId"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email,omitempty"`
	Phone             string `json:"phone,omitempty"`
	AttendeeType      string `json:"attendeeType"`
	ContactPreference string `json:"contactPreference,omitempty"`

	// Raw is the stored attendee; only attendeeType is ever rewritten
	Raw bson.M `json:"-"`
}

// ContactPreferencePrimaryAttendee delegates contact details to the booking contact
const ContactPreferencePrimaryAttendee = "primaryattendee"

// DelegatesContact reports whether missing email/phone is legitimate
func (a *Attendee) DelegatesContact() bool {
	return strings.EqualFold(strings.ReplaceAll(a.ContactPreference, "_", ""), ContactPreferencePrimaryAttendee)
}

// Document renders the attendee with its canonical attendeeType
func (a *Attendee) Document() bson.M {
	doc := CloneDocument(a.Raw)
	if doc == nil {
		doc = bson.M{}
	}
	if a.AttendeeType != "" {
		doc["attendeeType"] = a.AttendeeType
	}
	return doc
}

// BookingContact holds the purchaser's contact and billing details
type BookingContact struct {
	FirstName    string `json:"firstName,omitempty" bson:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty" bson:"lastName,omitempty"`
	Email        string `json:"email,omitempty" bson:"email,omitempty"`
	Phone        string `json:"phone,omitempty" bson:"phone,omitempty"`
	AddressLine1 string `json:"addressLine1,omitempty" bson:"addressLine1,omitempty"`
	City         string `json:"city,omitempty" bson:"city,omitempty"`
	State        string `json:"state,omitempty" bson:"state,omitempty"`
	PostalCode   string `json:"postalCode,omitempty" bson:"postalCode,omitempty"`
	Country      string `json:"country,omitempty" bson:"country,omitempty"`
	BusinessName string `json:"businessName,omitempty" bson:"businessName,omitempty"`

	// Raw is set when the contact was already stored canonically; it is
	// written back untouched
	Raw bson.M `json:"-" bson:"-"`
}

// Document renders the contact
func (c *BookingContact) Document() bson.M {
	if c.Raw != nil {
		return CloneDocument(c.Raw)
	}
	doc := bson.M{}
	set := func(k, v string) {
		if v != "" {
			doc[k] = v
		}
	}
	set("firstName", c.FirstName)
	set("lastName", c.LastName)
	set("email", c.Email)
	set("phone", c.Phone)
	set("addressLine1", c.AddressLine1)
	set("city", c.City)
	set("state", c.State)
	set("postalCode", c.PostalCode)
	set("country", c.Country)
	set("businessName", c.BusinessName)
	return doc
}
