package domain

import (
	"go.mongodb.org/mongo-driver/bson"
)

// EventTicketDefinition is the master record of a purchasable ticket type
type EventTicketDefinition struct {
	EventTicketID string `json:"eventTicketId"`
	EventID       string `json:"eventId,omitempty"`
	Name          string `json:"name"`
	Price         Money  `json:"price"`
	TotalCapacity int    `json:"totalCapacity"`
	// CachedCountFields lists derived count fields still persisted on the
	// record. They are stale by definition and only ever reported.
	CachedCountFields []string `json:"cachedCountFields,omitempty"`
}

// CachedCountFieldNames are derived fields that must not live on eventTickets
var CachedCountFieldNames = []string{
	"soldCount", "reservedCount", "availableCount", "cancelledCount",
	"utilizationRate", "lastComputedAt", "calculatedFields",
}

// ParseEventTicketDefinition reads an eventTickets document
func ParseEventTicketDefinition(doc bson.M) (*EventTicketDefinition, bool) {
	id := FirstString(doc, "eventTicketId", "event_ticket_id", "ticketDefinitionId")
	if id == "" {
		return nil, false
	}

	def := &EventTicketDefinition{
		EventTicketID: id,
		EventID:       FirstString(doc, "eventId", "event_id"),
		Name:          FirstString(doc, "name", "eventName", "ticketName"),
	}
	if v, _, ok := FirstValue(doc, "price", "ticketPrice"); ok {
		def.Price, _ = ParseMoney(v)
	}
	if v, _, ok := FirstValue(doc, "totalCapacity", "total_capacity", "capacity"); ok {
		if n, ok := NumberValue(v); ok {
			def.TotalCapacity = int(n)
		}
	}
	for _, f := range CachedCountFieldNames {
		if _, ok := doc[f]; ok {
			def.CachedCountFields = append(def.CachedCountFields, f)
		}
	}
	return def, true
}

// IncludedItem is one ticket type inside a package
type IncludedItem struct {
	EventTicketID string `json:"eventTicketId"`
	Name          string `json:"name,omitempty"`
	Quantity      int    `json:"quantity"`
	Price         Money  `json:"price"`
	HasPrice      bool   `json:"-"`
}

// Package is a bundle of event tickets sold as one item
type Package struct {
	PackageID     string         `json:"packageId"`
	Name          string         `json:"name"`
	Price         Money          `json:"price"`
	IncludedItems []IncludedItem `json:"includedItems"`
}

// ParsePackage reads a packages document
func ParsePackage(doc bson.M) (*Package, bool) {
	id := FirstString(doc, "packageId", "package_id")
	if id == "" {
		return nil, false
	}

	pkg := &Package{
		PackageID: id,
		Name:      FirstString(doc, "name", "packageName"),
	}
	if v, ok := doc["price"]; ok {
		pkg.Price, _ = ParseMoney(v)
	}

	items, _ := AsArray(doc["includedItems"])
	for _, raw := range items {
		itemDoc, ok := AsDocument(raw)
		if !ok {
			continue
		}
		item := IncludedItem{
			EventTicketID: FirstString(itemDoc, "eventTicketId", "event_ticket_id"),
			Name:          FirstString(itemDoc, "name"),
			Quantity:      1,
		}
		if item.EventTicketID == "" {
			continue
		}
		if n, ok := NumberValue(itemDoc["quantity"]); ok && n >= 1 {
			item.Quantity = int(n)
		}
		if p, ok := ParseMoney(itemDoc["price"]); ok {
			item.Price, item.HasPrice = p, true
		}
		pkg.IncludedItems = append(pkg.IncludedItems, item)
	}
	return pkg, true
}

// ComputedTicketCounts are derived live from tickets and never persisted
type ComputedTicketCounts struct {
	EventTicketID   string  `json:"eventTicketId"`
	Name            string  `json:"name"`
	TotalCapacity   int     `json:"totalCapacity"`
	SoldCount       int     `json:"soldCount"`
	ReservedCount   int     `json:"reservedCount"`
	CancelledCount  int     `json:"cancelledCount"`
	AvailableCount  int     `json:"availableCount"`
	UtilizationRate float64 `json:"utilizationRate"`
	Revenue         Money   `json:"revenue"`
}

// Finalize derives available count and utilization from the raw counts
func (c *ComputedTicketCounts) Finalize() {
	c.AvailableCount = c.TotalCapacity - (c.SoldCount + c.ReservedCount)
	if c.AvailableCount < 0 {
		c.AvailableCount = 0
	}
	if c.TotalCapacity > 0 {
		c.UtilizationRate = float64(c.SoldCount) / float64(c.TotalCapacity)
	}
}

// ReferenceSet is the read-only index of eventTickets and packages
type ReferenceSet struct {
	Definitions map[string]*EventTicketDefinition
	Packages    map[string]*Package
	// Malformed counts reference documents without an identifier
	Malformed int
}

// NewReferenceSet builds an index from parsed records
func NewReferenceSet(defs []*EventTicketDefinition, pkgs []*Package) *ReferenceSet {
	set := &ReferenceSet{
		Definitions: make(map[string]*EventTicketDefinition, len(defs)),
		Packages:    make(map[string]*Package, len(pkgs)),
	}
	for _, d := range defs {
		set.Definitions[d.EventTicketID] = d
	}
	for _, p := range pkgs {
		set.Packages[p.PackageID] = p
	}
	return set
}
