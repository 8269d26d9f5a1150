package service

import (
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// DiscrepancyDetector compares cached ticket fields with their definitions
type DiscrepancyDetector struct {
	resolver *Resolver
}

// NewDiscrepancyDetector creates a detector
func NewDiscrepancyDetector(resolver *Resolver) *DiscrepancyDetector {
	return &DiscrepancyDetector{resolver: resolver}
}

// NameMatches compares names exactly
func NameMatches(t *domain.Ticket, def *domain.EventTicketDefinition) bool {
	return t.Name == def.Name
}

// PriceMatches compares prices exactly in minor units. A ticket without a
// price carries zero.
func PriceMatches(t *domain.Ticket, def *domain.EventTicketDefinition) bool {
	return t.Price == def.Price
}

// Detect emits one record per mismatched or unresolved ticket. Package
// tickets waiting for expansion are not discrepancies.
func (d *DiscrepancyDetector) Detect(reg *domain.Registration) []domain.Discrepancy {
	var out []domain.Discrepancy
	for _, rt := range d.resolver.ResolveAll(reg) {
		t := rt.Ticket
		base := domain.Discrepancy{
			RegistrationID:     reg.RegistrationID,
			ConfirmationNumber: reg.ConfirmationNumber,
			TicketID:           t.Key(),
			EventTicketID:      t.EventTicketID,
			CurrentName:        t.Name,
			CurrentPrice:       t.Price,
		}

		switch rt.Result.Status {
		case domain.LookupFound:
			def := rt.Result.Definition
			base.NameMatches = NameMatches(t, def)
			base.PriceMatches = PriceMatches(t, def)
			if base.NameMatches && base.PriceMatches {
				continue
			}
			base.Kind = domain.DiscrepancyTicketMismatch
			base.CorrectName = def.Name
			base.CorrectPrice = def.Price
		case domain.LookupNotFound:
			base.Kind = domain.DiscrepancyUnresolved
			base.Reason = rt.Err.Error()
		case domain.LookupMalformed:
			base.Kind = domain.DiscrepancyUnresolved
			base.Reason = rt.Result.Reason
		default:
			continue
		}
		out = append(out, base)
	}
	return out
}

// CachedCountDiscrepancies reports derived count fields persisted on
// eventTickets. They are reported only; reference data is never written.
func CachedCountDiscrepancies(refs *domain.ReferenceSet) []domain.Discrepancy {
	var out []domain.Discrepancy
	for _, id := range sortedKeys(refs.Definitions) {
		def := refs.Definitions[id]
		for _, f := range def.CachedCountFields {
			out = append(out, domain.Discrepancy{
				Kind:          domain.DiscrepancyCachedCounts,
				EventTicketID: def.EventTicketID,
				Field:         f,
				Reason:        "derived count persisted on event ticket",
			})
		}
	}
	return out
}
