package domain

import "go.mongodb.org/mongo-driver/bson"

// LookupStatus is the outcome kind of a reference or document lookup
type LookupStatus int

const (
	LookupNotFound LookupStatus = iota
	LookupFound
	LookupNeedsExpansion
	LookupMalformed
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupNeedsExpansion:
		return "needs_expansion"
	case LookupMalformed:
		return "malformed"
	}
	return "not_found"
}

// LookupResult replaces "throw on not found" with an explicit outcome
type LookupResult struct {
	Status     LookupStatus
	Definition *EventTicketDefinition
	Package    *Package
	Document   bson.M
	Reason     string
}

// Found wraps a resolved event ticket definition
func Found(def *EventTicketDefinition) LookupResult {
	return LookupResult{Status: LookupFound, Definition: def}
}

// FoundDocument wraps a document returned by a store lookup
func FoundDocument(doc bson.M) LookupResult {
	return LookupResult{Status: LookupFound, Document: doc}
}

// NotFound reports a well-formed id that resolves to nothing
func NotFound() LookupResult {
	return LookupResult{Status: LookupNotFound}
}

// NeedsExpansion reports an id that names a package, not an event ticket
func NeedsExpansion(pkg *Package) LookupResult {
	return LookupResult{Status: LookupNeedsExpansion, Package: pkg}
}

// Malformed reports an id that cannot be looked up at all
func Malformed(reason string) LookupResult {
	return LookupResult{Status: LookupMalformed, Reason: reason}
}
