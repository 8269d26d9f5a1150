package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(testReferences())

	tests := []struct {
		name   string
		ticket domain.Ticket
		want   domain.LookupStatus
	}{
		{"found", domain.Ticket{EventTicketID: "banquet"}, domain.LookupFound},
		{"unknown", domain.Ticket{EventTicketID: "UNKNOWN_ID"}, domain.LookupNotFound},
		{"malformed", domain.Ticket{}, domain.LookupMalformed},
		{"package id", domain.Ticket{EventTicketID: "pkg-weekend"}, domain.LookupNeedsExpansion},
		{"package flag", domain.Ticket{
			EventTicketID: "banquet",
			Extra:         bson.M{"isPackage": true, "packageId": "pkg-weekend"},
		}, domain.LookupNeedsExpansion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(&tt.ticket)
			if got.Status != tt.want {
				t.Errorf("Resolve() = %v, want %v", got.Status, tt.want)
			}
		})
	}
}

func TestResolver_ResolveAllTagsMissingReferences(t *testing.T) {
	r := NewResolver(testReferences())
	reg := &domain.Registration{
		RegistrationID: "reg-1",
		Tickets: []domain.Ticket{
			{TicketID: "t1", EventTicketID: "banquet"},
			{TicketID: "t2", EventTicketID: "UNKNOWN_ID"},
		},
	}

	resolved := r.ResolveAll(reg)
	require.Len(t, resolved, 2)
	assert.Nil(t, resolved[0].Err)
	assert.True(t, errors.Is(resolved[1].Err, domain.ErrReferenceNotFound))
	assert.Equal(t, 1, resolved[1].Index)
}

func packageRegistration() *domain.Registration {
	return &domain.Registration{
		RegistrationID: "reg-pkg",
		Tickets: []domain.Ticket{
			{
				TicketID:      "t-pkg",
				EventTicketID: "pkg-weekend",
				Quantity:      1,
				Status:        domain.TicketStatusReserved,
				OwnerType:     domain.OwnerTypeAttendee,
				OwnerID:       "att-1",
				Extra:         bson.M{"isPackage": true, "note": "vip"},
			},
			{TicketID: "t-brunch", EventTicketID: "brunch", Quantity: 1, Status: domain.TicketStatusSold},
		},
	}
}

func TestPackageExpander_Expand(t *testing.T) {
	e := NewPackageExpander(NewResolver(testReferences()))
	reg := packageRegistration()

	result := e.Expand(reg)
	assert.Equal(t, []string{"pkg-weekend"}, result.Expanded)
	assert.True(t, reg.PackageExpanded)
	require.Len(t, reg.Tickets, 3)

	banquet := reg.Tickets[0]
	assert.Equal(t, "t-pkg_item_0", banquet.TicketID)
	assert.Equal(t, "banquet", banquet.EventTicketID)
	assert.Equal(t, "Grand Banquet", banquet.Name)
	assert.Equal(t, domain.Money(15000), banquet.Price)
	assert.Equal(t, "pkg-weekend", banquet.ParentPackageID)
	assert.Equal(t, domain.TicketStatusReserved, banquet.Status)
	assert.Equal(t, "att-1", banquet.OwnerID)
	assert.Equal(t, "vip", banquet.Extra["note"])
	assert.NotContains(t, banquet.Extra, "isPackage")

	ceremony := reg.Tickets[1]
	assert.Equal(t, "t-pkg_item_1", ceremony.TicketID)
	assert.Equal(t, 2, ceremony.Quantity)

	assert.Equal(t, "t-brunch", reg.Tickets[2].TicketID)
}

func TestPackageExpander_NeverTwice(t *testing.T) {
	e := NewPackageExpander(NewResolver(testReferences()))

	reg := packageRegistration()
	e.Expand(reg)
	before := len(reg.Tickets)
	result := e.Expand(reg)
	assert.Empty(t, result.Expanded)
	assert.Len(t, reg.Tickets, before)

	// child ids alone mark the package as expanded
	reg = packageRegistration()
	reg.Tickets = append(reg.Tickets, domain.Ticket{TicketID: "t-pkg_item_0", EventTicketID: "banquet"})
	result = e.Expand(reg)
	assert.Empty(t, result.Expanded)
	assert.Equal(t, []string{"pkg-weekend"}, result.Skipped)
	assert.False(t, reg.PackageExpanded)
}
