package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

func bookerRegistration(id string, attendees ...[2]string) *domain.Registration {
	reg := &domain.Registration{
		RegistrationID:     id,
		ConfirmationNumber: "IND-" + id,
		CustomerEmail:      "Booker@Example.com",
		Tickets: []domain.Ticket{
			{EventTicketID: "banquet", Quantity: 1},
			{EventTicketID: "banquet", Quantity: 1},
			{EventTicketID: "ceremony", Quantity: 2},
		},
	}
	for _, a := range attendees {
		reg.Attendees = append(reg.Attendees, domain.Attendee{FirstName: a[0], LastName: a[1]})
	}
	return reg
}

func TestSignatures(t *testing.T) {
	a := bookerRegistration("a", [2]string{"Alice", "Smith"}, [2]string{"Bob", "Jones"})
	b := bookerRegistration("b", [2]string{"bob", "jones "}, [2]string{"ALICE", "Smith"})

	assert.Equal(t, "booker@example.com|banquet:2,ceremony:2", LooseSignature(a))
	assert.Equal(t, StrictSignature(a), StrictSignature(b))
}

func TestFindDuplicates(t *testing.T) {
	report := FindDuplicates([]*domain.Registration{
		bookerRegistration("a", [2]string{"Alice", "Smith"}, [2]string{"Bob", "Jones"}),
		bookerRegistration("b", [2]string{"Carol", "White"}, [2]string{"Dave", "Brown"}),
		bookerRegistration("c", [2]string{"Bob", "Jones"}, [2]string{"Alice", "Smith"}),
		{RegistrationID: "no-email", Tickets: []domain.Ticket{{EventTicketID: "banquet", Quantity: 1}}},
	})

	assert.Equal(t, 4, report.Scanned)

	require.Len(t, report.Duplicates, 1)
	assert.True(t, report.Duplicates[0].Strict)
	assert.Equal(t, []string{"a", "c"}, report.Duplicates[0].RegistrationIDs)
	assert.Equal(t, []string{"IND-a", "IND-c"}, report.Duplicates[0].ConfirmationNumbers)

	require.Len(t, report.SameBooker, 1)
	assert.False(t, report.SameBooker[0].Strict)
	assert.Equal(t, "booker@example.com", report.SameBooker[0].Email)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, report.SameBooker[0].RegistrationIDs)
}

func TestFindDuplicates_DifferentAttendeesOnly(t *testing.T) {
	report := FindDuplicates([]*domain.Registration{
		bookerRegistration("a", [2]string{"Alice", "Smith"}, [2]string{"Bob", "Jones"}),
		bookerRegistration("b", [2]string{"Carol", "White"}, [2]string{"Dave", "Brown"}),
	})
	assert.Empty(t, report.Duplicates)
	require.Len(t, report.SameBooker, 1)
	assert.Equal(t, []string{"a", "b"}, report.SameBooker[0].RegistrationIDs)
}
