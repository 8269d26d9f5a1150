package service

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// Ticket field aliases, canonical name first
var (
	eventTicketIDAliases = []string{"eventTicketId", "event_ticket_id", "eventTicketsId", "ticketDefinitionId"}
	ticketIDAliases      = []string{"ticketId", "ticket_id", "id"}
	ticketNameAliases    = []string{"name", "ticketName"}
	ticketPriceAliases   = []string{"price", "ticketPrice"}
	ownerTypeAliases     = []string{"ownerType", "owner_type"}
	ownerIDAliases       = []string{"ownerId", "owner_id"}
	parentPackageAliases = []string{"parentPackageId", "parent_package_id"}
)

var ticketOwnedKeys = func() map[string]bool {
	keys := map[string]bool{"quantity": true, "status": true}
	for _, group := range [][]string{
		eventTicketIDAliases, ticketIDAliases, ticketNameAliases, ticketPriceAliases,
		ownerTypeAliases, ownerIDAliases, parentPackageAliases,
	} {
		for _, k := range group {
			keys[k] = true
		}
	}
	return keys
}()

// NormalizerConfig holds the configurable attendee type enum
type NormalizerConfig struct {
	AttendeeTypes []string
	// AttendeeTypeAliases rewrites one type onto another, e.g. partner=guest
	AttendeeTypeAliases map[string]string
}

// NormalizationReport describes what Normalize had to change
type NormalizationReport struct {
	RegistrationID       string
	TicketSource         domain.TicketShape
	MigratedLegacy       bool
	DroppedLegacy        bool
	ContactFromBilling   bool
	DroppedTickets       int
	RenamedRootFields    []string
	AttendeeTypeChanges  int
	UnknownAttendeeTypes []string
}

// Normalizer maps raw registrations onto the canonical shape. It has no
// side effects.
type Normalizer struct {
	attendeeTypes map[string]string
	aliases       map[string]string
}

// NewNormalizer creates a normalizer
func NewNormalizer(cfg *NormalizerConfig) *Normalizer {
	if cfg == nil || len(cfg.AttendeeTypes) == 0 {
		cfg = &NormalizerConfig{AttendeeTypes: []string{"mason", "guest", "member"}}
	}

	n := &Normalizer{
		attendeeTypes: make(map[string]string, len(cfg.AttendeeTypes)),
		aliases:       make(map[string]string, len(cfg.AttendeeTypeAliases)),
	}
	for _, t := range cfg.AttendeeTypes {
		n.attendeeTypes[strings.ToLower(t)] = t
	}
	for from, to := range cfg.AttendeeTypeAliases {
		n.aliases[strings.ToLower(from)] = to
	}
	return n
}

// NormalizeDocument parses and normalizes a stored document
func (n *Normalizer) NormalizeDocument(doc bson.M) (*domain.RawRegistration, *domain.Registration, *NormalizationReport, error) {
	raw, err := domain.ParseRawRegistration(doc)
	if err != nil {
		return nil, nil, nil, err
	}
	reg, report, err := n.Normalize(raw)
	return raw, reg, report, err
}

// Normalize produces the canonical registration. It fails only when no
// identifying id exists; per-ticket problems are collected on reg.Errors.
func (n *Normalizer) Normalize(raw *domain.RawRegistration) (*domain.Registration, *NormalizationReport, error) {
	id := raw.RootString("registrationId")
	if id == "" {
		id = domain.FirstString(raw.Data, "registrationId", "registration_id")
	}
	if id == "" {
		id = raw.RootString("confirmationNumber")
	}
	if id == "" {
		id = domain.StringValue(raw.Doc["_id"])
	}
	if id == "" {
		return nil, nil, &domain.NormalizationError{
			TicketIndex: -1,
			Field:       "registrationId",
			Reason:      "no identifier under any known field name",
		}
	}

	reg := &domain.Registration{
		ID:                 raw.Doc["_id"],
		RegistrationID:     id,
		ConfirmationNumber: raw.RootString("confirmationNumber"),
		PaymentStatus:      raw.RootString("paymentStatus"),
		RootFields:         bson.M{},
	}
	report := &NormalizationReport{RegistrationID: id, TicketSource: raw.TicketShape}

	typ := raw.RootString("registrationType")
	if typ == "" {
		typ = domain.FirstString(raw.Data, "registrationType", "registration_type")
	}
	reg.Type, _ = domain.ParseRegistrationType(typ)

	if v, ok := raw.RootValue("totalAmountPaid"); ok {
		reg.TotalAmountPaid, reg.HasTotal = domain.ParseMoney(v)
	}
	if v, _, ok := domain.FirstValue(raw.Doc, "createdAt", "created_at"); ok {
		reg.CreatedAt, _ = domain.TimeValue(v)
	}
	reg.LodgeID = raw.DataString("lodgeDetails.lodgeId", "lodgeId", "lodge_id")
	reg.PrimaryAttendeeID = raw.RootString("primaryAttendeeId")
	if reg.PrimaryAttendeeID == "" {
		reg.PrimaryAttendeeID = domain.FirstString(raw.Data, "primaryAttendeeId", "primary_attendee_id")
	}
	reg.StripePaymentIntentID = raw.RootString("stripePaymentIntentId")
	if reg.StripePaymentIntentID == "" {
		reg.StripePaymentIntentID = domain.FirstString(raw.Data, "stripePaymentIntentId", "stripe_payment_intent_id")
	}
	reg.SquarePaymentID = raw.RootString("squarePaymentId")
	if reg.SquarePaymentID == "" {
		reg.SquarePaymentID = domain.FirstString(raw.Data, "squarePaymentId", "square_payment_id")
	}
	if b, ok := raw.Data["packageExpanded"].(bool); ok {
		reg.PackageExpanded = b
	}

	n.normalizeRootFields(raw, reg, report)
	n.normalizeTickets(raw, reg, report)
	n.normalizeContact(raw, reg, report)
	n.normalizeAttendees(raw, reg, report)

	reg.CustomerEmail = raw.RootString("customerEmail")
	if reg.CustomerEmail == "" && reg.BookingContact != nil {
		reg.CustomerEmail = reg.BookingContact.Email
	}

	if raw.HasCanonicalData && raw.HasLegacyData {
		reg.Conflicts = append(reg.Conflicts, &domain.DuplicateWriteConflict{
			RegistrationID: id,
			Canonical:      domain.DataKeyCanonical,
			Legacy:         domain.DataKeyLegacy,
		})
	}

	return reg, report, nil
}

func (n *Normalizer) normalizeRootFields(raw *domain.RawRegistration, reg *domain.Registration, report *NormalizationReport) {
	for snake, camel := range domain.RootFieldRenames {
		v, ok := raw.Doc[snake]
		if !ok {
			continue
		}
		if _, exists := raw.Doc[camel]; exists {
			continue
		}
		reg.RootFields[camel] = v
		report.RenamedRootFields = append(report.RenamedRootFields, snake)
	}
	sort.Strings(report.RenamedRootFields)
}

func (n *Normalizer) normalizeTickets(raw *domain.RawRegistration, reg *domain.Registration, report *NormalizationReport) {
	source := raw.Tickets
	switch raw.TicketShape {
	case domain.TicketShapeLegacy:
		source = raw.LegacyTickets
		report.MigratedLegacy = true
	case domain.TicketShapeBoth:
		report.DroppedLegacy = true
		reg.Conflicts = append(reg.Conflicts, &domain.DuplicateWriteConflict{
			RegistrationID: reg.RegistrationID,
			Canonical:      "tickets",
			Legacy:         "selectedTickets",
		})
	}

	reg.Tickets = make([]domain.Ticket, 0, len(source))
	for i, doc := range source {
		t, err := n.normalizeTicket(doc, i, raw, reg)
		if err != nil {
			reg.Errors = append(reg.Errors, err)
			report.DroppedTickets++
			continue
		}
		reg.Tickets = append(reg.Tickets, *t)
	}
	report.DroppedTickets += raw.MalformedTickets
}

func (n *Normalizer) normalizeTicket(doc bson.M, index int, raw *domain.RawRegistration, reg *domain.Registration) (*domain.Ticket, error) {
	t := &domain.Ticket{
		EventTicketID:   domain.FirstString(doc, eventTicketIDAliases...),
		TicketID:        domain.FirstString(doc, ticketIDAliases...),
		Name:            domain.FirstString(doc, ticketNameAliases...),
		ParentPackageID: domain.FirstString(doc, parentPackageAliases...),
		Quantity:        1,
		Status:          domain.TicketStatusSold,
		Extra:           bson.M{},
	}
	if t.EventTicketID == "" {
		return nil, &domain.NormalizationError{
			RegistrationID: reg.RegistrationID,
			TicketIndex:    index,
			Field:          "eventTicketId",
			Reason:         "no event ticket id under any known field name",
		}
	}

	if v, key, ok := domain.FirstValue(doc, ticketPriceAliases...); ok {
		if t.Price, t.HasPrice = domain.ParseMoney(v); !t.HasPrice {
			t.Extra[key] = v
			reg.Errors = append(reg.Errors, invalidValue(reg, index, key, v))
		}
	}
	if v, ok := doc["quantity"]; ok && v != nil && !isNaN(v) {
		q, numeric := quantityValue(v)
		switch {
		case numeric && q >= 0 && q == math.Trunc(q):
			t.Quantity = int(q)
		case numeric:
			t.Quantity = int(q)
			t.RawQuantity = v
			reg.Errors = append(reg.Errors, invalidValue(reg, index, "quantity", v))
		default:
			t.RawQuantity = v
			reg.Errors = append(reg.Errors, invalidValue(reg, index, "quantity", v))
		}
	}
	if s := domain.StringValue(doc["status"]); s != "" {
		t.Status, _ = domain.ParseTicketStatus(s)
	}

	if ot, ok := domain.ParseOwnerType(domain.FirstString(doc, ownerTypeAliases...)); ok {
		t.OwnerType = ot
	} else if reg.Type == domain.RegistrationTypeLodge {
		t.OwnerType = domain.OwnerTypeLodge
	} else {
		t.OwnerType = domain.OwnerTypeAttendee
	}

	t.OwnerID = domain.FirstString(doc, ownerIDAliases...)
	if t.OwnerID == "" {
		if t.OwnerType == domain.OwnerTypeLodge {
			t.OwnerID = reg.LodgeID
			if t.OwnerID == "" {
				t.OwnerID = raw.DataString("organisationId", "organisation_id")
			}
		} else {
			t.OwnerID = domain.FirstString(doc, "attendeeId", "attendee_id")
			if t.OwnerID == "" {
				t.OwnerID = reg.PrimaryAttendeeID
			}
		}
		if t.OwnerID == "" {
			t.OwnerID = reg.RegistrationID
		}
	}

	for k, v := range doc {
		if !ticketOwnedKeys[k] {
			t.Extra[k] = v
		}
	}
	return t, nil
}

// invalidValue records a stored value that is kept as-is because it cannot
// be read as the canonical type
func invalidValue(reg *domain.Registration, index int, field string, v interface{}) error {
	return &domain.NormalizationError{
		RegistrationID: reg.RegistrationID,
		TicketIndex:    index,
		Field:          field,
		Reason:         fmt.Sprintf("unreadable value %v kept unchanged", v),
		Kept:           true,
	}
}

func isNaN(v interface{}) bool {
	switch f := v.(type) {
	case float64:
		return math.IsNaN(f)
	case float32:
		return math.IsNaN(float64(f))
	case string:
		return strings.EqualFold(strings.TrimSpace(f), "nan")
	}
	return false
}

// quantityValue reads numbers and numeric strings
func quantityValue(v interface{}) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil && !math.IsInf(f, 0)
	}
	return domain.NumberValue(v)
}

func (n *Normalizer) normalizeContact(raw *domain.RawRegistration, reg *domain.Registration, report *NormalizationReport) {
	switch raw.ContactShape {
	case domain.ContactShapeCanonical, domain.ContactShapeBoth:
		c := contactFromDocument(raw.Contact)
		c.Raw = raw.Contact
		reg.BookingContact = c
		if raw.ContactShape == domain.ContactShapeBoth {
			reg.Conflicts = append(reg.Conflicts, &domain.DuplicateWriteConflict{
				RegistrationID: reg.RegistrationID,
				Canonical:      "bookingContact",
				Legacy:         "billingDetails",
			})
		}
	case domain.ContactShapeBilling:
		reg.BookingContact = contactFromDocument(raw.Billing)
		report.ContactFromBilling = true
	}
}

// contactFromDocument maps both the canonical and the billingDetails spelling
func contactFromDocument(doc bson.M) *domain.BookingContact {
	c := &domain.BookingContact{
		FirstName:    domain.FirstString(doc, "firstName", "first_name"),
		LastName:     domain.FirstString(doc, "lastName", "last_name"),
		Email:        domain.FirstString(doc, "email", "emailAddress", "email_address"),
		Phone:        domain.FirstString(doc, "phone", "mobileNumber", "mobile", "phoneNumber"),
		AddressLine1: domain.FirstString(doc, "addressLine1", "address_line_1", "address"),
		City:         domain.FirstString(doc, "city", "suburb"),
		PostalCode:   domain.FirstString(doc, "postalCode", "postcode", "postal_code"),
		BusinessName: domain.FirstString(doc, "businessName", "business_name"),
	}
	if c.State = domain.FirstString(doc, "state", "stateTerritory.name", "stateTerritory"); c.State == "" {
		c.State = domain.FirstString(doc, "stateTerritory.isoCode")
	}
	if country, ok := domain.AsDocument(doc["country"]); ok {
		c.Country = domain.FirstString(country, "isoCode", "iso_code", "code", "name")
	} else {
		c.Country = domain.FirstString(doc, "country")
	}
	return c
}

func (n *Normalizer) normalizeAttendees(raw *domain.RawRegistration, reg *domain.Registration, report *NormalizationReport) {
	for _, doc := range raw.Attendees {
		a := domain.Attendee{
			AttendeeID:        domain.FirstString(doc, "attendeeId", "attendee_id", "id"),
			FirstName:         domain.FirstString(doc, "firstName", "first_name"),
			LastName:          domain.FirstString(doc, "lastName", "last_name"),
			Email:             domain.FirstString(doc, "email", "primaryEmail", "emailAddress"),
			Phone:             domain.FirstString(doc, "phone", "primaryPhone", "mobileNumber"),
			ContactPreference: domain.FirstString(doc, "contactPreference", "contact_preference"),
			Raw:               doc,
		}

		stored := domain.FirstString(doc, "attendeeType", "attendee_type", "type")
		a.AttendeeType = n.attendeeType(stored)
		if a.AttendeeType == "" {
			if stored != "" {
				report.UnknownAttendeeTypes = append(report.UnknownAttendeeTypes, stored)
			}
			a.AttendeeType = domain.StringValue(doc["attendeeType"])
		} else if a.AttendeeType != domain.StringValue(doc["attendeeType"]) {
			report.AttendeeTypeChanges++
		}
		reg.Attendees = append(reg.Attendees, a)
	}
}

// attendeeType returns the configured spelling, or "" for unknown types
func (n *Normalizer) attendeeType(stored string) string {
	key := strings.ToLower(strings.TrimSpace(stored))
	if key == "" {
		return ""
	}
	if to, ok := n.aliases[key]; ok {
		key = strings.ToLower(to)
	}
	return n.attendeeTypes[key]
}
