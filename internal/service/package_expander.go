package service

import (
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
)

// PackageExpander replaces package tickets with their included event tickets
type PackageExpander struct {
	resolver *Resolver
}

// NewPackageExpander creates a package expander
func NewPackageExpander(resolver *Resolver) *PackageExpander {
	return &PackageExpander{resolver: resolver}
}

// ExpansionResult lists what Expand did
type ExpansionResult struct {
	Expanded []string // package ids
	Skipped  []string // package ids already expanded
}

// Expand rewrites reg.Tickets in place. A registration is never expanded
// twice: the packageExpanded flag, a child carrying parentPackageId or a
// child id of the form <ticketId>_item_<i> all mark it as done.
func (e *PackageExpander) Expand(reg *domain.Registration) ExpansionResult {
	var result ExpansionResult

	tickets := make([]domain.Ticket, 0, len(reg.Tickets))
	for i := range reg.Tickets {
		t := reg.Tickets[i]
		lookup := e.resolver.Resolve(&t)
		if lookup.Status != domain.LookupNeedsExpansion {
			tickets = append(tickets, t)
			continue
		}

		pkg := lookup.Package
		if reg.PackageExpanded || alreadyExpanded(reg.Tickets, &t, pkg.PackageID) {
			result.Skipped = append(result.Skipped, pkg.PackageID)
			tickets = append(tickets, t)
			continue
		}

		tickets = append(tickets, e.expandOne(&t, pkg)...)
		result.Expanded = append(result.Expanded, pkg.PackageID)
	}

	if len(result.Expanded) > 0 {
		reg.Tickets = tickets
		reg.PackageExpanded = true
	}
	return result
}

func (e *PackageExpander) expandOne(t *domain.Ticket, pkg *domain.Package) []domain.Ticket {
	base := t.TicketID
	if base == "" {
		base = pkg.PackageID
	}

	out := make([]domain.Ticket, 0, len(pkg.IncludedItems))
	for i, item := range pkg.IncludedItems {
		child := domain.Ticket{
			TicketID:        fmt.Sprintf("%s_item_%d", base, i),
			EventTicketID:   item.EventTicketID,
			Name:            item.Name,
			Price:           item.Price,
			HasPrice:        item.HasPrice,
			Quantity:        item.Quantity,
			Status:          t.Status,
			OwnerType:       t.OwnerType,
			OwnerID:         t.OwnerID,
			ParentPackageID: pkg.PackageID,
			Extra:           childExtra(t.Extra),
		}
		if def, ok := e.resolver.References().Definitions[item.EventTicketID]; ok {
			child.Name = def.Name
			child.Price, child.HasPrice = def.Price, true
		}
		if child.Quantity < 1 {
			child.Quantity = 1
		}
		out = append(out, child)
	}
	return out
}

// childExtra keeps the package ticket's extra keys minus the package markers
func childExtra(extra bson.M) bson.M {
	out := make(bson.M, len(extra))
	for k, v := range extra {
		switch k {
		case "isPackage", "packageId", "package_id":
			continue
		}
		out[k] = v
	}
	return out
}

func alreadyExpanded(tickets []domain.Ticket, pkgTicket *domain.Ticket, packageID string) bool {
	prefix := ""
	if pkgTicket.TicketID != "" {
		prefix = pkgTicket.TicketID + "_item_"
	}
	for i := range tickets {
		if tickets[i].ParentPackageID == packageID {
			return true
		}
		if prefix != "" && strings.HasPrefix(tickets[i].TicketID, prefix) {
			return true
		}
	}
	return false
}
