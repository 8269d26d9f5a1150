package service

import (
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// Resolver resolves ticket references against a read-only ReferenceSet
type Resolver struct {
	refs *domain.ReferenceSet
}

// NewResolver creates a resolver
func NewResolver(refs *domain.ReferenceSet) *Resolver {
	if refs == nil {
		refs = domain.NewReferenceSet(nil, nil)
	}
	return &Resolver{refs: refs}
}

// References returns the underlying reference set
func (r *Resolver) References() *domain.ReferenceSet {
	return r.refs
}

// Resolve classifies one ticket. Package tickets flagged with isPackage
// are looked up by their packageId.
func (r *Resolver) Resolve(t *domain.Ticket) domain.LookupResult {
	if t.EventTicketID == "" {
		return domain.Malformed("ticket has no eventTicketId")
	}
	if t.IsPackageTicket() {
		if pkg, ok := r.refs.Packages[t.PackageID()]; ok {
			return domain.NeedsExpansion(pkg)
		}
	}
	if def, ok := r.refs.Definitions[t.EventTicketID]; ok {
		return domain.Found(def)
	}
	if pkg, ok := r.refs.Packages[t.EventTicketID]; ok {
		return domain.NeedsExpansion(pkg)
	}
	return domain.NotFound()
}

// ResolvedTicket pairs a ticket with its lookup outcome
type ResolvedTicket struct {
	Index  int
	Ticket *domain.Ticket
	Result domain.LookupResult
	Err    error
}

// ResolveAll resolves every ticket of a registration. Unresolved tickets
// carry a ReferenceNotFoundError.
func (r *Resolver) ResolveAll(reg *domain.Registration) []ResolvedTicket {
	out := make([]ResolvedTicket, 0, len(reg.Tickets))
	for i := range reg.Tickets {
		t := &reg.Tickets[i]
		rt := ResolvedTicket{Index: i, Ticket: t, Result: r.Resolve(t)}
		if rt.Result.Status == domain.LookupNotFound {
			rt.Err = &domain.ReferenceNotFoundError{
				RegistrationID: reg.RegistrationID,
				TicketID:       t.Key(),
				EventTicketID:  t.EventTicketID,
			}
		}
		out = append(out, rt)
	}
	return out
}
