package domain

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// TicketStatus represents the lifecycle state of a ticket
type TicketStatus string

const (
	TicketStatusSold        TicketStatus = "sold"
	TicketStatusReserved    TicketStatus = "reserved"
	TicketStatusCancelled   TicketStatus = "cancelled"
	TicketStatusTransferred TicketStatus = "transferred"
)

// ParseTicketStatus maps spelling variants onto the canonical statuses.
// Unknown values are returned unchanged with ok=false.
func ParseTicketStatus(s string) (TicketStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sold":
		return TicketStatusSold, true
	case "reserved":
		return TicketStatusReserved, true
	case "cancelled", "canceled":
		return TicketStatusCancelled, true
	case "transferred":
		return TicketStatusTransferred, true
	}
	return TicketStatus(s), false
}

// OwnerType says whether a ticket belongs to an attendee or a lodge
type OwnerType string

const (
	OwnerTypeAttendee OwnerType = "attendee"
	OwnerTypeLodge    OwnerType = "lodge"
)

// ParseOwnerType maps legacy owner spellings ("individual") to OwnerType
func ParseOwnerType(s string) (OwnerType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "attendee", "individual", "individuals":
		return OwnerTypeAttendee, true
	case "lodge", "lodges":
		return OwnerTypeLodge, true
	}
	return "", false
}

// Ticket is one priced line item of a registration in canonical shape
type Ticket struct {
	TicketID        string       `json:"ticketId,omitempty"`
	EventTicketID   string       `json:"eventTicketId"`
	Name            string       `json:"name,omitempty"`
	Price           Money        `json:"price"`
	HasPrice        bool         `json:"-"`
	Quantity        int          `json:"quantity"`
	Status          TicketStatus `json:"status"`
	OwnerType       OwnerType    `json:"ownerType"`
	OwnerID         string       `json:"ownerId,omitempty"`
	ParentPackageID string       `json:"parentPackageId,omitempty"`

	// RawQuantity holds a stored quantity that is not a whole non-negative
	// number; it is written back unchanged
	RawQuantity interface{} `json:"-"`

	// Extra keeps every key the canonical shape does not own
	Extra bson.M `json:"-"`
}

// IsPackageTicket reports whether the ticket was sold as a package
func (t *Ticket) IsPackageTicket() bool {
	if b, ok := t.Extra["isPackage"].(bool); ok {
		return b
	}
	return false
}

// PackageID returns the package identifier a package ticket points at
func (t *Ticket) PackageID() string {
	if id := StringValue(t.Extra["packageId"]); id != "" {
		return id
	}
	return t.EventTicketID
}

// Key returns the identifier used in reports
func (t *Ticket) Key() string {
	if t.TicketID != "" {
		return t.TicketID
	}
	return t.EventTicketID
}

// Document renders the canonical ticket, unknown keys included
func (t *Ticket) Document() bson.M {
	doc := CloneDocument(t.Extra)
	if doc == nil {
		doc = bson.M{}
	}
	if t.TicketID != "" {
		doc["ticketId"] = t.TicketID
	}
	doc["eventTicketId"] = t.EventTicketID
	if t.Name != "" {
		doc["name"] = t.Name
	}
	if t.HasPrice {
		doc["price"] = t.Price.Major()
	}
	if t.RawQuantity != nil {
		doc["quantity"] = t.RawQuantity
	} else {
		doc["quantity"] = t.Quantity
	}
	doc["status"] = string(t.Status)
	doc["ownerType"] = string(t.OwnerType)
	if t.OwnerID != "" {
		doc["ownerId"] = t.OwnerID
	}
	if t.ParentPackageID != "" {
		doc["parentPackageId"] = t.ParentPackageID
	}
	return doc
}
