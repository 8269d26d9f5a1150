package domain

// DiscrepancyKind classifies a discrepancy record
type DiscrepancyKind string

const (
	DiscrepancyTicketMismatch DiscrepancyKind = "ticket_mismatch"
	DiscrepancyUnresolved     DiscrepancyKind = "unresolved_reference"
	DiscrepancyPayment        DiscrepancyKind = "payment"
	DiscrepancySourceMismatch DiscrepancyKind = "source_mismatch"
	DiscrepancyCachedCounts   DiscrepancyKind = "cached_counts"
)

// Discrepancy is one mismatched or unresolved item with both the current
// and the correct values
type Discrepancy struct {
	Kind               DiscrepancyKind `json:"kind"`
	RegistrationID     string          `json:"registrationId,omitempty"`
	ConfirmationNumber string          `json:"confirmationNumber,omitempty"`
	TicketID           string          `json:"ticketId,omitempty"`
	EventTicketID      string          `json:"eventTicketId,omitempty"`

	CurrentName  string `json:"currentName,omitempty"`
	CorrectName  string `json:"correctName,omitempty"`
	NameMatches  bool   `json:"nameMatches"`
	CurrentPrice Money  `json:"currentPrice"`
	CorrectPrice Money  `json:"correctPrice"`
	PriceMatches bool   `json:"priceMatches"`

	// Field, CurrentValue and CorrectValue describe non-ticket mismatches
	Field        string `json:"field,omitempty"`
	CurrentValue string `json:"currentValue,omitempty"`
	CorrectValue string `json:"correctValue,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// DuplicateGroup is a set of registrations sharing a signature
type DuplicateGroup struct {
	Signature           string   `json:"signature"`
	Email               string   `json:"email"`
	Strict              bool     `json:"strict"`
	RegistrationIDs     []string `json:"registrationIds"`
	ConfirmationNumbers []string `json:"confirmationNumbers"`
}

// DuplicateReport separates probable duplicates from same-booker groups
type DuplicateReport struct {
	Scanned int `json:"scanned"`
	// Duplicates share email, ticket multiset and attendee identities
	Duplicates []DuplicateGroup `json:"duplicates"`
	// SameBooker share email and tickets but not attendees; not duplicates
	SameBooker []DuplicateGroup `json:"sameBooker"`
}
