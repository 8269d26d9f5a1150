package service

import (
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/repository"
)

const (
	registrationsColl = "registrations"
	eventTicketsColl  = "eventTickets"
	packagesColl      = "packages"
)

func testReferences() *domain.ReferenceSet {
	return domain.NewReferenceSet(
		[]*domain.EventTicketDefinition{
			{EventTicketID: "banquet", Name: "Grand Banquet", Price: 15000, TotalCapacity: 100},
			{EventTicketID: "ceremony", Name: "Installation Ceremony", Price: 5000, TotalCapacity: 200},
			{EventTicketID: "brunch", Name: "Farewell Brunch", Price: 4500, TotalCapacity: 50},
		},
		[]*domain.Package{
			{
				PackageID: "pkg-weekend",
				Name:      "Full Weekend",
				Price:     20000,
				IncludedItems: []domain.IncludedItem{
					{EventTicketID: "banquet", Quantity: 1},
					{EventTicketID: "ceremony", Quantity: 2},
				},
			},
		},
	)
}

// seedReferences writes testReferences' equivalent documents to the store
func seedReferences(store *repository.MemoryDocumentStore) {
	store.Insert(eventTicketsColl,
		bson.M{"eventTicketId": "banquet", "name": "Grand Banquet", "price": 150.0, "totalCapacity": 100},
		bson.M{"eventTicketId": "ceremony", "name": "Installation Ceremony", "price": 50.0, "totalCapacity": 200},
		bson.M{"eventTicketId": "brunch", "name": "Farewell Brunch", "price": 45.0, "totalCapacity": 50, "soldCount": 3},
	)
	store.Insert(packagesColl, bson.M{
		"packageId": "pkg-weekend",
		"name":      "Full Weekend",
		"price":     200.0,
		"includedItems": bson.A{
			bson.M{"eventTicketId": "banquet", "quantity": 1},
			bson.M{"eventTicketId": "ceremony", "quantity": 2},
		},
	})
}

// lodgeRegistration is a legacy lodge booking: selectedTickets, billing
// details and snake_case root fields
func lodgeRegistration(id, lodgeID string) bson.M {
	return bson.M{
		"registrationId":     id,
		"confirmationNumber": "LDG-" + id,
		"registration_type":  "lodge",
		"payment_status":     "completed",
		"total_amount_paid":  1500.0,
		"registrationData": bson.M{
			"lodgeDetails": bson.M{"lodgeId": lodgeID, "lodgeName": "Lodge Harmony No. 1"},
			"selectedTickets": bson.A{
				bson.M{"event_ticket_id": "banquet", "ticketName": "Grand Banquet", "price": 150, "quantity": 10},
			},
			"billingDetails": bson.M{
				"firstName":    "Ada",
				"lastName":     "Lovelace",
				"emailAddress": "ada@example.com",
				"mobileNumber": "0400000000",
				"country":      bson.M{"name": "Australia", "isoCode": "AU"},
			},
		},
	}
}

// fakeIndividualRegistration builds a canonical individuals registration
// with random people
func fakeIndividualRegistration(id string, attendees int) bson.M {
	email := gofakeit.Email()
	people := bson.A{}
	tickets := bson.A{}
	for i := 0; i < attendees; i++ {
		attendeeID := fmt.Sprintf("%s-att-%d", id, i)
		people = append(people, bson.M{
			"attendeeId":   attendeeID,
			"firstName":    gofakeit.FirstName(),
			"lastName":     gofakeit.LastName(),
			"email":        gofakeit.Email(),
			"attendeeType": "mason",
		})
		tickets = append(tickets, bson.M{
			"ticketId":      fmt.Sprintf("%s-t-%d", id, i),
			"eventTicketId": "ceremony",
			"name":          "Installation Ceremony",
			"price":         50.0,
			"quantity":      1,
			"status":        "sold",
			"ownerType":     "attendee",
			"ownerId":       attendeeID,
		})
	}
	return bson.M{
		"registrationId":     id,
		"confirmationNumber": "IND-" + id,
		"registrationType":   "individuals",
		"paymentStatus":      "completed",
		"totalAmountPaid":    50.0 * float64(attendees),
		"customerEmail":      email,
		"registrationData": bson.M{
			"bookingContact": bson.M{"firstName": gofakeit.FirstName(), "lastName": gofakeit.LastName(), "email": email},
			"attendees":      people,
			"tickets":        tickets,
		},
	}
}

func normalize(t testing.TB, doc bson.M) (*domain.RawRegistration, *domain.Registration, *NormalizationReport) {
	t.Helper()
	raw, reg, report, err := NewNormalizer(nil).NormalizeDocument(doc)
	if err != nil {
		t.Fatalf("NormalizeDocument() error = %v", err)
	}
	return raw, reg, report
}
