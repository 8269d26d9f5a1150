package service

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

func TestNormalizer_LodgeSelectedTickets(t *testing.T) {
	raw, reg, report := normalize(t, lodgeRegistration("reg-1", "lodge-42"))

	assert.Equal(t, domain.RegistrationTypeLodge, reg.Type)
	assert.Equal(t, domain.TicketShapeLegacy, report.TicketSource)
	assert.True(t, report.MigratedLegacy)
	assert.True(t, report.ContactFromBilling)

	require.Len(t, reg.Tickets, 1)
	ticket := reg.Tickets[0]
	assert.Equal(t, "banquet", ticket.EventTicketID)
	assert.Equal(t, domain.OwnerTypeLodge, ticket.OwnerType)
	assert.Equal(t, "lodge-42", ticket.OwnerID)
	assert.Equal(t, domain.Money(15000), ticket.Price)
	assert.Equal(t, 10, ticket.Quantity)
	assert.Equal(t, domain.TicketStatusSold, ticket.Status)
	assert.Equal(t, "Grand Banquet", ticket.Name)

	require.NotNil(t, reg.BookingContact)
	assert.Equal(t, "ada@example.com", reg.BookingContact.Email)
	assert.Equal(t, "0400000000", reg.BookingContact.Phone)
	assert.Equal(t, "AU", reg.BookingContact.Country)
	assert.Equal(t, "ada@example.com", reg.Email())

	set, unset := CanonicalFields(raw, reg)
	assert.Contains(t, set, "registrationData.tickets")
	assert.Contains(t, set, "registrationData.bookingContact")
	assert.Equal(t, "lodge", set["registrationType"])
	assert.Contains(t, unset, "registrationData.selectedTickets")
	assert.Contains(t, unset, "registrationData.billingDetails")
	assert.Contains(t, unset, "registration_type")
	assert.Contains(t, unset, "payment_status")
	assert.Equal(t, "completed", set["paymentStatus"])
}

func TestNormalizer_LodgeOwnerFallbacks(t *testing.T) {
	doc := lodgeRegistration("reg-2", "")
	data := doc["registrationData"].(bson.M)
	delete(data, "lodgeDetails")
	data["organisationId"] = "org-7"

	_, reg, _ := normalize(t, doc)
	require.Len(t, reg.Tickets, 1)
	assert.Equal(t, "org-7", reg.Tickets[0].OwnerID)

	delete(data, "organisationId")
	_, reg, _ = normalize(t, doc)
	assert.Equal(t, "reg-2", reg.Tickets[0].OwnerID)
}

func TestNormalizer_CanonicalDocumentHasNoChanges(t *testing.T) {
	doc := fakeIndividualRegistration("reg-3", 2)
	doc["registrationType"] = "individual"

	raw, reg, report := normalize(t, doc)
	assert.Equal(t, domain.TicketShapeCanonical, report.TicketSource)
	assert.Empty(t, reg.Conflicts)
	for _, ticket := range reg.Tickets {
		assert.Equal(t, domain.OwnerTypeAttendee, ticket.OwnerType)
	}

	set, unset := CanonicalFields(raw, reg)
	changes := Diff(doc, set, unset)
	if changes.Len() != 0 {
		t.Errorf("Diff() staged %v %v, want nothing", changes.SetPaths(), changes.UnsetPaths())
	}
}

func TestNormalizer_BothTicketArrays(t *testing.T) {
	doc := fakeIndividualRegistration("reg-4", 1)
	data := doc["registrationData"].(bson.M)
	data["selectedTickets"] = bson.A{bson.M{"eventTicketId": "brunch", "quantity": 3}}

	raw, reg, report := normalize(t, doc)
	assert.Equal(t, domain.TicketShapeBoth, report.TicketSource)
	assert.True(t, report.DroppedLegacy)
	require.Len(t, reg.Tickets, 1)
	assert.Equal(t, "ceremony", reg.Tickets[0].EventTicketID)
	require.Len(t, reg.Conflicts, 1)
	assert.True(t, errors.Is(reg.Conflicts[0], domain.ErrDuplicateWriteConflict))

	_, unset := CanonicalFields(raw, reg)
	assert.Contains(t, unset, "registrationData.selectedTickets")
}

func TestNormalizer_EmptyTicketsArrayIsAbsent(t *testing.T) {
	doc := lodgeRegistration("reg-5", "lodge-1")
	doc["registrationData"].(bson.M)["tickets"] = bson.A{}

	_, reg, report := normalize(t, doc)
	assert.Equal(t, domain.TicketShapeLegacy, report.TicketSource)
	assert.Len(t, reg.Tickets, 1)
}

func TestNormalizer_LegacyDataKey(t *testing.T) {
	doc := lodgeRegistration("reg-6", "lodge-1")
	doc["registration_data"] = doc["registrationData"]
	delete(doc, "registrationData")

	raw, reg, _ := normalize(t, doc)
	set, unset := CanonicalFields(raw, reg)

	data, ok := set["registrationData"].(bson.M)
	require.True(t, ok, "registrationData should be set as a whole")
	assert.NotContains(t, data, "selectedTickets")
	assert.NotContains(t, data, "billingDetails")
	assert.Contains(t, data, "lodgeDetails")
	assert.Contains(t, data, "tickets")
	assert.Contains(t, unset, "registration_data")
	for path := range set {
		assert.NotContains(t, path, "registrationData.", "child path %s set next to its parent", path)
	}
}

func TestNormalizer_MissingIdentifier(t *testing.T) {
	_, _, _, err := NewNormalizer(nil).NormalizeDocument(bson.M{
		"registrationType": "lodge",
		"registrationData": bson.M{"tickets": bson.A{}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNormalization))

	var nerr *domain.NormalizationError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, -1, nerr.TicketIndex)
}

func TestNormalizer_EmptyDocument(t *testing.T) {
	_, _, _, err := NewNormalizer(nil).NormalizeDocument(bson.M{})
	assert.True(t, errors.Is(err, domain.ErrEmptyDocument))
}

func TestNormalizer_DropsTicketWithoutEventTicketID(t *testing.T) {
	doc := fakeIndividualRegistration("reg-7", 2)
	tickets := doc["registrationData"].(bson.M)["tickets"].(bson.A)
	delete(tickets[1].(bson.M), "eventTicketId")
	tickets = append(tickets, "not a ticket")
	doc["registrationData"].(bson.M)["tickets"] = tickets

	_, reg, report := normalize(t, doc)
	assert.Len(t, reg.Tickets, 1)
	assert.Equal(t, 2, report.DroppedTickets)
	require.Len(t, reg.Errors, 1)

	var nerr *domain.NormalizationError
	require.True(t, errors.As(reg.Errors[0], &nerr))
	assert.Equal(t, 1, nerr.TicketIndex)
	assert.Equal(t, "eventTicketId", nerr.Field)
}

func TestNormalizer_AttendeeTypes(t *testing.T) {
	n := NewNormalizer(&NormalizerConfig{
		AttendeeTypes:       []string{"mason", "guest"},
		AttendeeTypeAliases: map[string]string{"partner": "guest"},
	})
	doc := fakeIndividualRegistration("reg-8", 3)
	people := doc["registrationData"].(bson.M)["attendees"].(bson.A)
	people[0].(bson.M)["attendeeType"] = "Partner"
	people[1].(bson.M)["attendeeType"] = "visitor"

	_, reg, report, err := n.NormalizeDocument(doc)
	require.NoError(t, err)

	assert.Equal(t, "guest", reg.Attendees[0].AttendeeType)
	assert.Equal(t, "visitor", reg.Attendees[1].AttendeeType)
	assert.Equal(t, "mason", reg.Attendees[2].AttendeeType)
	assert.Equal(t, 1, report.AttendeeTypeChanges)
	assert.Equal(t, []string{"visitor"}, report.UnknownAttendeeTypes)
}

func TestNormalizer_AttendeeOwnerFallback(t *testing.T) {
	doc := fakeIndividualRegistration("reg-9", 1)
	doc["primaryAttendeeId"] = "primary-1"
	ticket := doc["registrationData"].(bson.M)["tickets"].(bson.A)[0].(bson.M)
	delete(ticket, "ownerId")
	delete(ticket, "ownerType")

	_, reg, _ := normalize(t, doc)
	assert.Equal(t, domain.OwnerTypeAttendee, reg.Tickets[0].OwnerType)
	assert.Equal(t, "primary-1", reg.Tickets[0].OwnerID)

	ticket["attendeeId"] = "att-x"
	_, reg, _ = normalize(t, doc)
	assert.Equal(t, "att-x", reg.Tickets[0].OwnerID)
}

func TestNormalizer_IdentifierFallsBackToObjectID(t *testing.T) {
	oid := primitive.NewObjectID()
	_, reg, report := normalize(t, bson.M{
		"_id":              oid,
		"registrationData": bson.M{"tickets": bson.A{bson.M{"eventTicketId": "banquet"}}},
	})

	if reg.RegistrationID != oid.Hex() {
		t.Errorf("RegistrationID = %v, want %v", reg.RegistrationID, oid.Hex())
	}
	assert.Equal(t, oid.Hex(), report.RegistrationID)
	assert.Equal(t, oid, reg.ID)
}

func TestNormalizer_UnreadableTicketValuesAreKept(t *testing.T) {
	tests := []struct {
		name         string
		ticket       bson.M
		wantQuantity int
		wantStored   bson.M
		wantErrField string
	}{
		{
			name:         "price placeholder",
			ticket:       bson.M{"eventTicketId": "banquet", "price": "TBA", "quantity": 2},
			wantQuantity: 2,
			wantStored:   bson.M{"price": "TBA", "quantity": 2},
			wantErrField: "price",
		},
		{
			name:         "fractional quantity",
			ticket:       bson.M{"eventTicketId": "banquet", "price": 150, "quantity": 2.5},
			wantQuantity: 2,
			wantStored:   bson.M{"price": 150.0, "quantity": 2.5},
			wantErrField: "quantity",
		},
		{
			name:         "negative quantity",
			ticket:       bson.M{"eventTicketId": "banquet", "price": 150, "quantity": -1},
			wantQuantity: -1,
			wantStored:   bson.M{"quantity": -1},
			wantErrField: "quantity",
		},
		{
			name:         "word quantity",
			ticket:       bson.M{"eventTicketId": "banquet", "price": 150, "quantity": "two"},
			wantQuantity: 1,
			wantStored:   bson.M{"quantity": "two"},
			wantErrField: "quantity",
		},
		{
			name:         "zero quantity",
			ticket:       bson.M{"eventTicketId": "banquet", "price": 150, "quantity": 0},
			wantQuantity: 0,
			wantStored:   bson.M{"quantity": 0},
		},
		{
			name:         "NaN quantity",
			ticket:       bson.M{"eventTicketId": "banquet", "price": 150, "quantity": math.NaN()},
			wantQuantity: 1,
			wantStored:   bson.M{"quantity": 1},
		},
		{
			name:         "missing quantity",
			ticket:       bson.M{"eventTicketId": "banquet", "price": 150},
			wantQuantity: 1,
			wantStored:   bson.M{"quantity": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := fakeIndividualRegistration("reg-kept", 0)
			doc["registrationData"].(bson.M)["tickets"] = bson.A{tt.ticket}

			_, reg, report := normalize(t, doc)
			require.Len(t, reg.Tickets, 1)
			assert.Equal(t, 0, report.DroppedTickets)

			ticket := reg.Tickets[0]
			if ticket.Quantity != tt.wantQuantity {
				t.Errorf("Quantity = %v, want %v", ticket.Quantity, tt.wantQuantity)
			}
			stored := ticket.Document()
			for k, want := range tt.wantStored {
				assert.Equal(t, want, stored[k], "stored %s", k)
			}

			if tt.wantErrField == "" {
				assert.Empty(t, reg.Errors)
				return
			}
			require.Len(t, reg.Errors, 1)
			var nerr *domain.NormalizationError
			require.True(t, errors.As(reg.Errors[0], &nerr))
			assert.True(t, nerr.Kept)
			assert.Equal(t, tt.wantErrField, nerr.Field)
			assert.Equal(t, 0, nerr.TicketIndex)
		})
	}
}

func TestNormalizer_TicketAliasesNormalizeIdentically(t *testing.T) {
	var want bson.A
	for _, key := range []string{"event_ticket_id", "eventTicketId", "eventTicketsId"} {
		t.Run(key, func(t *testing.T) {
			doc := lodgeRegistration("reg-alias", "lodge-42")
			doc["registrationData"].(bson.M)["selectedTickets"] = bson.A{
				bson.M{key: "banquet", "ticketName": "Grand Banquet", "price": 150, "quantity": 10},
			}

			raw, reg, _ := normalize(t, doc)
			require.Len(t, reg.Tickets, 1)
			assert.Equal(t, "banquet", reg.Tickets[0].EventTicketID)

			set, _ := CanonicalFields(raw, reg)
			got, ok := set["registrationData.tickets"].(bson.A)
			require.True(t, ok, "registrationData.tickets should be set")
			if want == nil {
				want = got
				return
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalizer_BillingDetailsSpellings(t *testing.T) {
	tests := []struct {
		name    string
		billing bson.M
	}{
		{
			name: "legacy spelling",
			billing: bson.M{
				"firstName":    "Ada",
				"lastName":     "Lovelace",
				"emailAddress": "ada@example.com",
				"mobileNumber": "0400000000",
				"postcode":     "2000",
				"country":      bson.M{"name": "Australia", "isoCode": "AU"},
			},
		},
		{
			name: "canonical spelling",
			billing: bson.M{
				"firstName":  "Ada",
				"lastName":   "Lovelace",
				"email":      "ada@example.com",
				"phone":      "0400000000",
				"postalCode": "2000",
				"country":    "AU",
			},
		},
	}

	want := domain.BookingContact{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Phone:      "0400000000",
		PostalCode: "2000",
		Country:    "AU",
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := lodgeRegistration("reg-billing", "lodge-1")
			doc["registrationData"].(bson.M)["billingDetails"] = tt.billing

			_, reg, report := normalize(t, doc)
			assert.True(t, report.ContactFromBilling)
			require.NotNil(t, reg.BookingContact)
			assert.Equal(t, want, *reg.BookingContact)
		})
	}
}

func TestNormalizer_CanonicalTicketsPreservedExactly(t *testing.T) {
	doc := fakeIndividualRegistration("reg-both", 2)
	doc["registrationType"] = "individual"
	data := doc["registrationData"].(bson.M)
	canonical := data["tickets"].(bson.A)
	canonical[0].(bson.M)["seat"] = "A12"
	original := domain.CloneDocument(bson.M{"tickets": canonical})["tickets"]
	data["selectedTickets"] = bson.A{
		bson.M{"event_ticket_id": "brunch", "price": 45, "quantity": 3},
		bson.M{"event_ticket_id": "banquet", "price": 150},
	}

	raw, reg, _ := normalize(t, doc)
	require.Len(t, reg.Tickets, 2)
	for i, ticket := range reg.Tickets {
		assert.Equal(t, original.(bson.A)[i], ticket.Document())
	}

	set, unset := CanonicalFields(raw, reg)
	changes := Diff(doc, set, unset)
	assert.Empty(t, changes.SetPaths())
	if got := changes.UnsetPaths(); len(got) != 1 || got[0] != "registrationData.selectedTickets" {
		t.Errorf("UnsetPaths() = %v, want [registrationData.selectedTickets]", got)
	}
}

func TestNormalizer_LodgeSelectedTicketScenario(t *testing.T) {
	doc := bson.M{
		"_id":              "oid-1",
		"registrationType": "lodge",
		"registrationData": bson.M{
			"lodgeDetails": bson.M{"lodgeId": "L1"},
			"selectedTickets": bson.A{
				bson.M{"id": "t1", "event_ticket_id": "ET1", "price": 50, "attendeeId": "A1"},
			},
		},
	}

	raw, reg, _ := normalize(t, doc)
	require.Len(t, reg.Tickets, 1)
	got := reg.Tickets[0].Document()
	want := bson.M{
		"eventTicketId": "ET1",
		"price":         50.0,
		"quantity":      1,
		"status":        "sold",
		"ownerType":     "lodge",
		"ownerId":       "L1",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("ticket[%s] = %v, want %v", k, got[k], v)
		}
	}

	set, unset := CanonicalFields(raw, reg)
	assert.Contains(t, set, "registrationData.tickets")
	assert.Contains(t, unset, "registrationData.selectedTickets")
}
